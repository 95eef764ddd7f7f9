package breakpoint

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
)

// #region constants
// WindowFraction is the sliding-window width as a fraction of text length.
const WindowFraction = 0.02

// ErrTooShort is returned when the text is too short to yield a derivative.
var ErrTooShort = errors.New("text too short for breakpoint detection")

// #endregion constants

// #region signal
// Signal holds the intermediate series computed while searching for a
// breakpoint.
type Signal struct {
	Threshold   int       // window width
	Transitions []float64 // P(text[i+1] | text[i])
	Average     []float64 // Average[k] = mean(Transitions[k : k+Threshold])
	Derivative  []float64 // (Average[j+Threshold] - Average[j]) / Threshold
	MinIndex    int
	MaxIndex    int
}

// Threshold returns the window width used for a text of the given length:
// 2% of the length rounded half to even, and never less than one.
func Threshold(length int) int {
	w := int(math.RoundToEven(WindowFraction * float64(length)))
	if w < 1 {
		w = 1
	}
	return w
}

// NewSignal computes the transition, sliding-average and derivative series
// for text.
func NewSignal(text []byte, table *langmodel.TransitionTable) (Signal, error) {
	if err := alphabet.Validate(text); err != nil {
		return Signal{}, err
	}
	w := Threshold(len(text))
	sig := Signal{Threshold: w}

	if len(text) > 1 {
		sig.Transitions = make([]float64, len(text)-1)
		prev, _ := alphabet.Index(text[0])
		for i := 1; i < len(text); i++ {
			cur, _ := alphabet.Index(text[i])
			sig.Transitions[i-1] = table.Prob(cur, prev)
			prev = cur
		}
	}

	for k := 0; k+w < len(sig.Transitions); k++ {
		sig.Average = append(sig.Average, stat.Mean(sig.Transitions[k:k+w], nil))
	}
	for j := 0; j+w < len(sig.Average); j++ {
		sig.Derivative = append(sig.Derivative, (sig.Average[j+w]-sig.Average[j])/float64(w))
	}
	if len(sig.Derivative) == 0 {
		return sig, fmt.Errorf("%w: length %d, window %d", ErrTooShort, len(text), w)
	}

	sig.MinIndex = floats.MinIdx(sig.Derivative)
	sig.MaxIndex = floats.MaxIdx(sig.Derivative)
	return sig, nil
}

// #endregion signal

// #region detect
// Breakpoint maps the sharper of the two derivative extremes back into text
// index space. A drop and a rise of equal magnitude resolve to the drop.
func (s Signal) Breakpoint() int {
	lo := s.Derivative[s.MinIndex]
	hi := s.Derivative[s.MaxIndex]
	if math.Abs(lo) >= math.Abs(hi) {
		return s.MinIndex + s.Threshold
	}
	return s.MaxIndex + s.Threshold
}

// Detect returns the most likely position at which the decoding of text
// changes character, along with the signal it was derived from.
func Detect(text []byte, table *langmodel.TransitionTable) (int, Signal, error) {
	sig, err := NewSignal(text, table)
	if err != nil {
		return -1, sig, err
	}
	return sig.Breakpoint(), sig, nil
}

// #endregion detect
