package state

import "time"

// #region phase
// Phase names the sampler pass a restart belongs to.
type Phase string

const (
	PhaseFull   Phase = "full"   // whole ciphertext, no breakpoint
	PhaseLocate Phase = "locate" // whole ciphertext, used only to find the breakpoint
	PhasePrefix Phase = "prefix" // ciphertext before the breakpoint
	PhaseSuffix Phase = "suffix" // ciphertext from the breakpoint on
)

// #endregion phase

// #region run-record
// RunRecord is one persisted decode of a ciphertext.
type RunRecord struct {
	RunID         string
	Ciphertext    string
	Plaintext     string
	HasBreakpoint bool
	Breakpoint    int // -1 when not requested
	Score         float64
	Seed          uint64
	ConfigJSON    string
	ElapsedMS     int64
	CreatedAt     time.Time
	Restarts      []RestartRecord // populated by GetRun only
}

// #endregion run-record

// #region restart-record
// RestartRecord is one sampler restart within a run.
type RestartRecord struct {
	Phase      Phase
	Index      int
	Seed       uint64
	FinalKey   string
	FinalScore float64
	Key        string
	Score      float64
	Iterations int
	Accepted   int
	Converged  bool
	Winner     bool // chosen by the cross-restart reduction
}

// #endregion restart-record
