package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/breakpoint"
	"github.com/danielpatrickdp/substitution-breaker/internal/gate"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
	"github.com/danielpatrickdp/substitution-breaker/internal/score"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
)

// #endregion

// #region orchestrator-struct

// Orchestrator decodes ciphertexts in no-breakpoint or breakpoint mode.
type Orchestrator struct {
	sampler  *sampler.Sampler
	scorer   *score.Scorer
	recorder Recorder
	tracer   Tracer
	gate     *gate.Gate
}

// #endregion

// #region constructor

// NewOrchestrator wires a sampler and the scorer it was built with.
func NewOrchestrator(s *sampler.Sampler, scorer *score.Scorer) *Orchestrator {
	return &Orchestrator{sampler: s, scorer: scorer}
}

// WithRecorder returns a copy of o that saves every finished run to r.
func (o *Orchestrator) WithRecorder(r Recorder) *Orchestrator {
	cp := *o
	cp.recorder = r
	return &cp
}

// WithTracer returns a copy of o that forwards sampler progress to t.
// Progress is only sampled when the sampler's ProgressEvery is set.
func (o *Orchestrator) WithTracer(t Tracer) *Orchestrator {
	cp := *o
	cp.tracer = t
	return &cp
}

// WithGate returns a copy of o that judges every decoded segment with g.
func (o *Orchestrator) WithGate(g *gate.Gate) *Orchestrator {
	cp := *o
	cp.gate = g
	return &cp
}

// #endregion

// #region decode

// Decode decodes ciphertext under a fresh run ID.
func (o *Orchestrator) Decode(ctx context.Context, ciphertext []byte, hasBreakpoint bool) (Result, error) {
	return o.DecodeRun(ctx, uuid.NewString(), ciphertext, hasBreakpoint)
}

// DecodeRun decodes ciphertext. Without a breakpoint the sampler runs once on
// the whole text. With one, a first whole-text run is used only to locate
// the breakpoint, and the prefix and suffix are then decoded independently
// and concatenated. If the text is too short for detection it is decoded as
// a single segment and Breakpoint stays -1.
func (o *Orchestrator) DecodeRun(ctx context.Context, runID string, ciphertext []byte, hasBreakpoint bool) (Result, error) {
	if len(ciphertext) == 0 {
		return Result{}, ErrEmptyInput
	}
	if err := alphabet.Validate(ciphertext); err != nil {
		return Result{}, fmt.Errorf("decode: %w", err)
	}

	start := time.Now()
	n := len(ciphertext)
	res := Result{RunID: runID, Breakpoint: -1, Seed: runSeed(o.sampler.Config().Seed)}

	if !hasBreakpoint {
		full, err := o.segment(ctx, runID, res.Seed, state.PhaseFull, 0, ciphertext, 0, n)
		if err != nil {
			return Result{}, err
		}
		res.Segments = []SegmentResult{full}
	} else {
		loc, err := o.run(ctx, runID, res.Seed, state.PhaseLocate, 0, ciphertext)
		if err != nil {
			return Result{}, err
		}
		bp, sig, err := breakpoint.Detect(loc.Text, o.scorer.Table())
		switch {
		case errors.Is(err, breakpoint.ErrTooShort):
			log.Printf("[DECODE] run=%s: %v, decoding as one segment", runID, err)
			res.Segments = []SegmentResult{{
				Phase: state.PhaseFull, Start: 0, End: n, Plaintext: loc.Text, Sampler: loc,
			}}
		case err != nil:
			return Result{}, fmt.Errorf("detect breakpoint: %w", err)
		default:
			log.Printf("[DECODE] run=%s breakpoint=%d window=%d", runID, bp, sig.Threshold)
			res.Breakpoint = bp
			res.Locator = &loc
			res.Signal = &sig

			prefix, err := o.segment(ctx, runID, res.Seed, state.PhasePrefix, 1, ciphertext[:bp], 0, bp)
			if err != nil {
				return Result{}, err
			}
			suffix, err := o.segment(ctx, runID, res.Seed, state.PhaseSuffix, 2, ciphertext[bp:], bp, n)
			if err != nil {
				return Result{}, err
			}
			res.Segments = []SegmentResult{prefix, suffix}
		}
	}

	res.Plaintext = make([]byte, 0, n)
	for i := range res.Segments {
		seg := &res.Segments[i]
		res.Plaintext = append(res.Plaintext, seg.Plaintext...)
		if o.gate != nil {
			d := o.gate.Evaluate(seg.Sampler)
			seg.Verdict = &d
			log.Printf("[GATE] run=%s phase=%s action=%s reason=%s", runID, seg.Phase, d.Action, d.Reason)
		}
	}
	res.Score = o.scorer.Score(res.Plaintext, o.sampler.Config().Base)
	res.Elapsed = time.Since(start)

	log.Printf("[DECODE] run=%s length=%d segments=%d score=%.3f elapsed=%s",
		runID, n, len(res.Segments), res.Score, res.Elapsed.Round(time.Millisecond))

	if o.recorder != nil {
		if _, err := o.recorder.SaveRun(o.record(ciphertext, hasBreakpoint, res)); err != nil {
			log.Printf("[DECODE] failed to record run %s: %v", runID, err)
		}
	}
	return res, nil
}

// #endregion

// #region phases

func (o *Orchestrator) segment(ctx context.Context, runID string, seed uint64, phase state.Phase, ordinal int, text []byte, start, end int) (SegmentResult, error) {
	r, err := o.run(ctx, runID, seed, phase, ordinal, text)
	if err != nil {
		return SegmentResult{}, err
	}
	return SegmentResult{Phase: phase, Start: start, End: end, Plaintext: r.Text, Sampler: r}, nil
}

// run executes the sampler for one phase. Each phase derives its own seed
// from the run seed.
func (o *Orchestrator) run(ctx context.Context, runID string, seed uint64, phase state.Phase, ordinal int, text []byte) (sampler.Result, error) {
	s := o.sampler.WithSeed(phaseSeed(seed, ordinal))
	if o.tracer != nil {
		s = s.WithObserver(phaseObserver{tracer: o.tracer, runID: runID, phase: string(phase)})
	}
	r, err := s.Run(ctx, text)
	if err != nil {
		return sampler.Result{}, fmt.Errorf("%s phase: %w", phase, err)
	}
	return r, nil
}

// runSeed returns the configured seed, or a fresh nonzero one when none is
// set. Every phase of a run is derived from it so the run can be replayed.
func runSeed(configured uint64) uint64 {
	if configured != 0 {
		return configured
	}
	for {
		if s := rand.Uint64(); s != 0 {
			return s
		}
	}
}

func phaseSeed(seed uint64, ordinal int) uint64 {
	if seed == 0 {
		return 0
	}
	s := seed + uint64(ordinal)*0x9e3779b97f4a7c15
	if s == 0 {
		s = 1
	}
	return s
}

type phaseObserver struct {
	tracer Tracer
	runID  string
	phase  string
}

func (p phaseObserver) OnProgress(pr sampler.Progress) {
	p.tracer.Trace(p.runID, p.phase, pr)
}

// #endregion

// #region record

func (o *Orchestrator) record(ciphertext []byte, hasBreakpoint bool, res Result) state.RunRecord {
	rec := state.RunRecord{
		RunID:         res.RunID,
		Ciphertext:    string(ciphertext),
		Plaintext:     string(res.Plaintext),
		HasBreakpoint: hasBreakpoint,
		Breakpoint:    res.Breakpoint,
		Score:         res.Score,
		Seed:          res.Seed,
		ElapsedMS:     res.Elapsed.Milliseconds(),
	}
	if cfg, err := json.Marshal(o.sampler.Config()); err == nil {
		rec.ConfigJSON = string(cfg)
	}

	if res.Locator != nil {
		rec.Restarts = append(rec.Restarts, restartRecords(state.PhaseLocate, *res.Locator)...)
	}
	for _, seg := range res.Segments {
		rec.Restarts = append(rec.Restarts, restartRecords(seg.Phase, seg.Sampler)...)
	}
	return rec
}

func restartRecords(phase state.Phase, r sampler.Result) []state.RestartRecord {
	out := make([]state.RestartRecord, 0, len(r.Restarts))
	for i, rr := range r.Restarts {
		out = append(out, state.RestartRecord{
			Phase:      phase,
			Index:      rr.Index,
			Seed:       rr.Seed,
			FinalKey:   rr.Final.String(),
			FinalScore: rr.FinalScore,
			Key:        rr.Key.String(),
			Score:      rr.Score,
			Iterations: rr.Iterations,
			Accepted:   rr.Accepted,
			Converged:  rr.Converged,
			Winner:     i == r.Best,
		})
	}
	return out
}

// #endregion
