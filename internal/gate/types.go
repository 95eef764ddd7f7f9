package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoTooShort    VetoType = "too_short"
	VetoLikelihood  VetoType = "likelihood_gap"
	VetoUnconverged VetoType = "unconverged"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds thresholds for gate decisions.
type GateConfig struct {
	MinLength          int     // shorter decodings are not trusted
	MaxLikelihoodGap   float64 // max nats/symbol below the model's expected log-likelihood
	RequireConvergence bool    // at least one restart must stop on its stationary limit
}

// DefaultGateConfig returns the default thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MinLength:          50,
		MaxLikelihoodGap:   1.0,
		RequireConvergence: true,
	}
}

// #endregion gate-config

// #region gate-decision
// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action        string // "accept" | "flag"
	Reason        string
	Vetoed        bool
	VetoSignals   []VetoSignal // non-empty if vetoed
	SoftScore     float64      // 0-1 composite of soft signals (for logging)
	LikelihoodGap float64      // expected minus observed nats/symbol
	Agreement     float64      // mean symbol agreement of restarts with the winner
}

// #endregion gate-decision
