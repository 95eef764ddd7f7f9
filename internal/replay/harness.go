package replay

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
	"github.com/danielpatrickdp/substitution-breaker/internal/eval"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/orchestrator"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
	"github.com/danielpatrickdp/substitution-breaker/internal/score"
)

// #region types
// Case is a known plaintext and the key or keys that encrypt it.
type Case struct {
	CaseID     string
	Plaintext  []byte
	Key        cipher.Function
	SecondKey  cipher.Function // used from Breakpoint on
	Breakpoint int             // -1 for a single key
}

// Ciphertext encrypts the plaintext, switching keys at the breakpoint.
func (c Case) Ciphertext() ([]byte, error) {
	if c.Breakpoint < 0 {
		return c.Key.Encode(c.Plaintext)
	}
	head, err := c.Key.Encode(c.Plaintext[:c.Breakpoint])
	if err != nil {
		return nil, err
	}
	tail, err := c.SecondKey.Encode(c.Plaintext[c.Breakpoint:])
	if err != nil {
		return nil, err
	}
	return append(head, tail...), nil
}

// ReplayConfig bundles sampler and eval configs for a replay run.
type ReplayConfig struct {
	SamplerConfig sampler.Config
	EvalConfig    eval.EvalConfig
}

// DefaultReplayConfig returns the default sampler and eval settings.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		SamplerConfig: sampler.DefaultConfig(),
		EvalConfig:    eval.DefaultEvalConfig(),
	}
}

// Outcome is one decode of a case's ciphertext.
type Outcome struct {
	RunID      string
	Plaintext  []byte
	Breakpoint int
	Score      float64
	Accuracy   float64
}

// ReplayResult captures the outcome of replaying one case. Every case is
// decoded both with and without breakpoint handling; the mode matching the
// case decides pass or fail.
type ReplayResult struct {
	CaseID string
	Action string // "pass" | "fail"
	Reason string

	Ciphertext        []byte
	WithBreakpoint    Outcome
	WithoutBreakpoint Outcome

	EvalResult *eval.EvalResult
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalCases int
	Passed     int
	Failed     int

	MeanAccuracy             float64 // with breakpoint handling
	MeanAccuracyNoBreakpoint float64 // without
}

// #endregion types

// #region replay

// NewOrchestrator builds an orchestrator over model with the given sampler
// settings.
func NewOrchestrator(model *langmodel.Model, config sampler.Config) (*orchestrator.Orchestrator, error) {
	scorer := score.NewScorer(&model.Transitions)
	s, err := sampler.NewSampler(scorer, config)
	if err != nil {
		return nil, err
	}
	return orchestrator.NewOrchestrator(s, scorer), nil
}

// Replay encrypts and decodes each case, then evaluates the decode whose
// mode matches the case against its plaintext.
func Replay(ctx context.Context, orch *orchestrator.Orchestrator, cases []Case, config eval.EvalConfig) ([]ReplayResult, error) {
	harness := eval.NewEvalHarness(config)
	results := make([]ReplayResult, 0, len(cases))

	for _, c := range cases {
		ct, err := c.Ciphertext()
		if err != nil {
			return nil, fmt.Errorf("case %s: encode: %w", c.CaseID, err)
		}

		// 1. Decode both ways
		with, err := decode(ctx, orch, c, ct, true)
		if err != nil {
			return nil, err
		}
		without, err := decode(ctx, orch, c, ct, false)
		if err != nil {
			return nil, err
		}

		// 2. Evaluate the matching mode
		primary := without
		if c.Breakpoint >= 0 {
			primary = with
		}
		sample := eval.Sample{
			Decoded:            primary.res.Plaintext,
			Reference:          c.Plaintext,
			Breakpoint:         primary.res.Breakpoint,
			ExpectedBreakpoint: c.Breakpoint,
		}
		for _, seg := range primary.res.Segments {
			sample.Segments = append(sample.Segments, eval.Span{Start: seg.Start, End: seg.End})
		}
		evalResult, err := harness.Run(sample)
		if err != nil {
			return nil, fmt.Errorf("case %s: eval: %w", c.CaseID, err)
		}

		action := "pass"
		if !evalResult.Passed {
			action = "fail"
		}
		results = append(results, ReplayResult{
			CaseID:            c.CaseID,
			Action:            action,
			Reason:            evalResult.Reason,
			Ciphertext:        ct,
			WithBreakpoint:    with.outcome,
			WithoutBreakpoint: without.outcome,
			EvalResult:        &evalResult,
		})
	}
	return results, nil
}

type decoded struct {
	res     orchestrator.Result
	outcome Outcome
}

func decode(ctx context.Context, orch *orchestrator.Orchestrator, c Case, ct []byte, hasBreakpoint bool) (decoded, error) {
	res, err := orch.Decode(ctx, ct, hasBreakpoint)
	if err != nil {
		return decoded{}, fmt.Errorf("case %s: decode (breakpoint=%v): %w", c.CaseID, hasBreakpoint, err)
	}
	acc, err := eval.Accuracy(res.Plaintext, c.Plaintext)
	if err != nil {
		return decoded{}, fmt.Errorf("case %s: %w", c.CaseID, err)
	}
	return decoded{
		res: res,
		outcome: Outcome{
			RunID:      res.RunID,
			Plaintext:  res.Plaintext,
			Breakpoint: res.Breakpoint,
			Score:      res.Score,
			Accuracy:   acc,
		},
	}, nil
}

// Run loads the fixture's model, cases and config and replays them. baseDir
// resolves relative table paths.
func Run(ctx context.Context, f *Fixture, baseDir string) ([]ReplayResult, error) {
	model, err := f.Model.Load(baseDir)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	config := f.Config.ToReplayConfig()
	orch, err := NewOrchestrator(model, config.SamplerConfig)
	if err != nil {
		return nil, err
	}
	cases := make([]Case, len(f.Cases))
	for i := range f.Cases {
		if cases[i], err = f.Cases[i].ToCase(model); err != nil {
			return nil, err
		}
	}
	return Replay(ctx, orch, cases, config.EvalConfig)
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalCases: len(results)}
	if len(results) == 0 {
		return s
	}
	with := make([]float64, 0, len(results))
	without := make([]float64, 0, len(results))
	for _, r := range results {
		switch r.Action {
		case "pass":
			s.Passed++
		case "fail":
			s.Failed++
		}
		with = append(with, r.WithBreakpoint.Accuracy)
		without = append(without, r.WithoutBreakpoint.Accuracy)
	}
	s.MeanAccuracy = stat.Mean(with, nil)
	s.MeanAccuracyNoBreakpoint = stat.Mean(without, nil)
	return s
}

// #endregion replay
