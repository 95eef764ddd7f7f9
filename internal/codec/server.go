package codec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/config"
	"github.com/danielpatrickdp/substitution-breaker/internal/gate"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/orchestrator"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
	"github.com/danielpatrickdp/substitution-breaker/internal/score"
	"github.com/danielpatrickdp/substitution-breaker/internal/verdict"
)

// #region server-struct
// Server implements DecoderServer. Loaded language models are kept in an
// LRU cache keyed by model name.
type Server struct {
	cfg      *config.Config
	models   *lru.Cache[string, *langmodel.Model]
	recorder orchestrator.Recorder
	tracer   orchestrator.Tracer
	verdicts *verdict.Store
	logger   *slog.Logger
}

// #endregion server-struct

// #region constructor
// NewServer builds a decoder server from cfg and validates its sampler
// settings.
func NewServer(cfg *config.Config) (*Server, error) {
	size := cfg.Service.ModelCacheSize
	if size < 1 {
		size = 1
	}
	s := &Server{cfg: cfg, logger: slog.Default()}
	models, err := lru.NewWithEvict(size, func(name string, _ *langmodel.Model) {
		s.logger.Debug("model evicted", "model", name)
	})
	if err != nil {
		return nil, fmt.Errorf("model cache: %w", err)
	}
	s.models = models

	if _, err := sampler.NewSampler(nil, cfg.SamplerConfig()); err != nil {
		return nil, err
	}
	return s, nil
}

// WithRecorder makes the server persist every decode.
func (s *Server) WithRecorder(r orchestrator.Recorder) *Server {
	s.recorder = r
	return s
}

// WithTracer makes the server forward sampler progress.
func (s *Server) WithTracer(t orchestrator.Tracer) *Server {
	s.tracer = t
	return s
}

// WithVerdicts makes the server persist gate verdicts.
func (s *Server) WithVerdicts(v *verdict.Store) *Server {
	s.verdicts = v
	return s
}

// WithLogger replaces the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// #endregion constructor

// #region decode
// Decode handles one Decode RPC.
func (s *Server) Decode(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeRequestFrom(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	model, err := s.model(req.Model)
	if err != nil {
		if errors.Is(err, config.ErrUnknownModel) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "load model: %v", err)
	}

	scorer := score.NewScorer(&model.Transitions)
	smp, err := sampler.NewSampler(scorer, s.cfg.SamplerConfig())
	if err != nil {
		return nil, status.Errorf(codes.FailedPrecondition, "sampler: %v", err)
	}
	orch := orchestrator.NewOrchestrator(smp, scorer)
	if s.recorder != nil {
		orch = orch.WithRecorder(s.recorder)
	}
	if s.tracer != nil {
		orch = orch.WithTracer(s.tracer)
	}
	if gc, ok := s.cfg.GateConfig(); ok {
		orch = orch.WithGate(gate.NewGate(gc, model))
	}

	if d := s.cfg.Service.RequestTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	res, err := orch.Decode(ctx, []byte(req.Ciphertext), req.HasBreakpoint)
	if err != nil {
		s.logger.Warn("decode failed", "model", req.Model, "length", len(req.Ciphertext), "error", err)
		return nil, toStatus(err)
	}
	s.logger.Info("decode",
		"run_id", res.RunID,
		"model", req.Model,
		"length", len(req.Ciphertext),
		"breakpoint", res.Breakpoint,
		"score", res.Score,
		"flagged", res.Flagged(),
		"elapsed", time.Since(start),
	)

	if s.verdicts != nil {
		if err := s.verdicts.SaveResult(res); err != nil {
			s.logger.Warn("verdicts not saved", "run_id", res.RunID, "error", err)
		}
	}

	out, err := DecodeResponse{
		RunID:      res.RunID,
		Plaintext:  string(res.Plaintext),
		Breakpoint: res.Breakpoint,
		Score:      res.Score,
		Flagged:    res.Flagged(),
	}.toStruct()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func (s *Server) model(name string) (*langmodel.Model, error) {
	if name == "" {
		name = "default"
	}
	if m, ok := s.models.Get(name); ok {
		return m, nil
	}
	mc, err := s.cfg.ModelFor(name)
	if err != nil {
		return nil, err
	}
	m, err := mc.Load()
	if err != nil {
		return nil, err
	}
	s.models.Add(name, m)
	s.logger.Debug("model loaded", "model", name)
	return m, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput), errors.Is(err, alphabet.ErrInvalidSymbol):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// #endregion decode
