package sampler

import (
	"errors"
	"math"

	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
)

// #region selection
// Selection decides which state of a restart represents it in the
// cross-restart comparison.
type Selection string

const (
	// SelectBestEver uses the highest-scoring state visited during the restart.
	SelectBestEver Selection = "best_ever"
	// SelectFinal compares the score of the last iteration's current state and
	// keeps the decoding recorded on the most recent rejection. Kept for
	// compatibility with earlier runs.
	SelectFinal Selection = "final"
)

// #endregion selection

// #region config
// Config holds the sampler's tuning knobs.
type Config struct {
	Restarts        int       // independent chains per run
	StationaryLimit int       // consecutive rejections treated as convergence
	MaxIterations   int       // hard cap per restart
	Base            float64   // logarithm base for scores and acceptance
	Selection       Selection // restart representative, see Selection
	Workers         int       // restarts run concurrently; <= 1 is sequential
	Seed            uint64    // 0 draws a fresh seed per run
	ProgressEvery   int       // observer sample interval in iterations; 0 disables
}

// DefaultConfig returns the reference settings: 10 restarts, convergence
// after 1000 stationary iterations, at most 10000 iterations, natural log.
func DefaultConfig() Config {
	return Config{
		Restarts:        10,
		StationaryLimit: 1000,
		MaxIterations:   10000,
		Base:            math.E,
		Selection:       SelectBestEver,
		Workers:         1,
	}
}

// #endregion config

// #region errors
var (
	// ErrConfig is returned for unusable sampler settings.
	ErrConfig = errors.New("invalid sampler config")
	// ErrEmptyText is returned when asked to sample an empty ciphertext.
	ErrEmptyText = errors.New("empty ciphertext")
)

// #endregion errors

// #region progress
// Progress is a periodic sample of one restart's chain.
type Progress struct {
	Restart        int
	Iteration      int
	Score          float64
	AcceptanceRate float64 // accepted moves over the sample interval
	Key            string
	Preview        string // decoded prefix of the ciphertext
}

// Observer receives progress samples. With Workers > 1 it is called from
// several goroutines.
type Observer interface {
	OnProgress(Progress)
}

// #endregion progress

// #region results
// RestartResult is the immutable outcome of one restart.
type RestartResult struct {
	Index int
	Seed  uint64

	// State at the end of the chain.
	Final      cipher.Function
	FinalScore float64

	// Representative chosen by the configured Selection.
	Key   cipher.Function
	Score float64
	Text  []byte

	Iterations int
	Accepted   int
	Converged  bool // stopped on StationaryLimit rather than MaxIterations
}

// AcceptanceRate returns accepted moves per iteration.
func (r RestartResult) AcceptanceRate() float64 {
	if r.Iterations == 0 {
		return 0
	}
	return float64(r.Accepted) / float64(r.Iterations)
}

// Result is the outcome of a full multi-restart run.
type Result struct {
	Text     []byte
	Score    float64
	Key      cipher.Function
	Best     int // index into Restarts of the winning restart
	Seed     uint64
	Restarts []RestartResult
}

// #endregion results
