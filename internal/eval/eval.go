package eval

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch is returned when a decoding and its reference differ in
// length.
var ErrLengthMismatch = errors.New("decoded and reference lengths differ")

// #region accuracy
// Accuracy returns the fraction of positions where decoded matches
// reference. Empty inputs score 0.
func Accuracy(decoded, reference []byte) (float64, error) {
	if len(decoded) != len(reference) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(decoded), len(reference))
	}
	if len(decoded) == 0 {
		return 0, nil
	}
	same := 0
	for i := range decoded {
		if decoded[i] == reference[i] {
			same++
		}
	}
	return float64(same) / float64(len(decoded)), nil
}

// #endregion accuracy

// #region eval-harness
// EvalHarness scores decodes against known plaintexts.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks overall accuracy, per-segment accuracy and breakpoint error.
// The spread of segment accuracies is reported but never fails the run.
func (h *EvalHarness) Run(s Sample) (EvalResult, error) {
	acc, err := Accuracy(s.Decoded, s.Reference)
	if err != nil {
		return EvalResult{}, err
	}

	var metrics []EvalMetric
	var failReasons []string

	// 1. Whole-text accuracy
	accPass := acc >= h.config.MinAccuracy
	metrics = append(metrics, EvalMetric{Name: "accuracy", Value: acc, Pass: accPass})
	if !accPass {
		failReasons = append(failReasons, fmt.Sprintf("accuracy %.4f below %.4f", acc, h.config.MinAccuracy))
	}

	// 2. Per-segment accuracy
	spans := s.Segments
	if len(spans) == 0 {
		spans = []Span{{Start: 0, End: len(s.Decoded)}}
	}
	segAcc := make([]float64, 0, len(spans))
	for i, sp := range spans {
		if sp.Start < 0 || sp.End > len(s.Decoded) || sp.Start > sp.End {
			return EvalResult{}, fmt.Errorf("segment %d [%d,%d) outside text of length %d", i, sp.Start, sp.End, len(s.Decoded))
		}
		a, _ := Accuracy(s.Decoded[sp.Start:sp.End], s.Reference[sp.Start:sp.End])
		segAcc = append(segAcc, a)
		pass := a >= h.config.MinSegmentAccuracy
		metrics = append(metrics, EvalMetric{Name: fmt.Sprintf("segment_%d_accuracy", i), Value: a, Pass: pass})
		if !pass {
			failReasons = append(failReasons, fmt.Sprintf("segment %d accuracy %.4f below %.4f", i, a, h.config.MinSegmentAccuracy))
		}
	}

	// 3. Segment spread: informational
	var spread float64
	if len(segAcc) > 1 {
		spread = stat.StdDev(segAcc, nil)
	}
	metrics = append(metrics, EvalMetric{Name: "segment_spread", Value: spread, Pass: true})

	// 4. Breakpoint error, only when a key change is expected
	if s.ExpectedBreakpoint >= 0 {
		off := len(s.Decoded)
		if s.Breakpoint >= 0 {
			off = abs(s.Breakpoint - s.ExpectedBreakpoint)
		}
		pass := off <= h.config.MaxBreakpointError
		metrics = append(metrics, EvalMetric{Name: "breakpoint_error", Value: float64(off), Pass: pass})
		if !pass {
			failReasons = append(failReasons, fmt.Sprintf("breakpoint off by %d, limit %d", off, h.config.MaxBreakpointError))
		}
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:   len(failReasons) == 0,
		Accuracy: acc,
		Metrics:  metrics,
		Reason:   reason,
	}, nil
}

// #endregion eval-harness

// #region helpers
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// #endregion helpers
