package orchestrator

// #region imports
import (
	"errors"
	"time"

	"github.com/danielpatrickdp/substitution-breaker/internal/breakpoint"
	"github.com/danielpatrickdp/substitution-breaker/internal/gate"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
)

// #endregion

// #region errors

// ErrEmptyInput is returned when Decode is given no ciphertext.
var ErrEmptyInput = errors.New("empty ciphertext")

// #endregion

// #region segment-result

// SegmentResult is one independently decoded span of the ciphertext.
type SegmentResult struct {
	Phase     state.Phase
	Start     int // inclusive
	End       int // exclusive
	Plaintext []byte
	Sampler   sampler.Result
	Verdict   *gate.GateDecision // nil unless the orchestrator has a gate
}

// #endregion

// #region result

// Result is the outcome of a decode.
type Result struct {
	RunID      string
	Plaintext  []byte
	Breakpoint int     // -1 when not requested or not detectable
	Score      float64 // score of Plaintext as a whole
	Seed       uint64  // run seed every phase seed was derived from

	// Segments holds the decodings Plaintext was assembled from: one full
	// segment, or a prefix and a suffix.
	Segments []SegmentResult

	// Locator is the whole-text run used to find the breakpoint. It is nil
	// in no-breakpoint mode; its decoding is not part of Plaintext.
	Locator *sampler.Result
	Signal  *breakpoint.Signal

	Elapsed time.Duration
}

// Flagged reports whether the gate flagged any segment.
func (r Result) Flagged() bool {
	for _, seg := range r.Segments {
		if seg.Verdict != nil && seg.Verdict.Action == "flag" {
			return true
		}
	}
	return false
}

// #endregion

// #region interfaces

// Recorder persists finished runs. *state.Store implements it.
type Recorder interface {
	SaveRun(rec state.RunRecord) (string, error)
}

// Tracer receives sampler progress samples tagged with run and phase.
// *logging.TraceSink implements it.
type Tracer interface {
	Trace(runID, phase string, p sampler.Progress)
}

// #endregion
