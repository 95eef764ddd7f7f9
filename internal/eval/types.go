package eval

// #region eval-config
// EvalConfig holds thresholds for judging a decode against its reference.
type EvalConfig struct {
	MinAccuracy        float64 // fail if whole-text accuracy is below this
	MinSegmentAccuracy float64 // fail if any segment's accuracy is below this
	MaxBreakpointError int     // fail if the detected breakpoint is further off than this
}

// DefaultEvalConfig returns the thresholds used by the replay fixtures.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MinAccuracy:        0.9,
		MinSegmentAccuracy: 0.8,
		MaxBreakpointError: 100,
	}
}

// #endregion eval-config

// #region sample
// Span is a half-open range [Start, End) of text positions.
type Span struct {
	Start int
	End   int
}

// Sample is one decode to evaluate.
type Sample struct {
	Decoded   []byte
	Reference []byte
	Segments  []Span // independently decoded spans; empty means one span

	Breakpoint         int // detected, -1 when none
	ExpectedBreakpoint int // true key change, -1 when none
}

// #endregion sample

// #region eval-metric
// EvalMetric captures a single check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of an evaluation.
type EvalResult struct {
	Passed   bool
	Accuracy float64
	Metrics  []EvalMetric
	Reason   string
}

// #endregion eval-result
