package langmodel

import (
	"errors"
	"math"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
)

// #region constants
// ZeroFloor replaces transition probabilities of exactly zero so their
// logarithm stays finite.
var ZeroFloor = math.Exp(-20)

const n = alphabet.Size

// #endregion constants

// #region errors
var (
	// ErrShape is returned when a table does not have alphabet dimensions.
	ErrShape = errors.New("table shape mismatch")
	// ErrProbability is returned for values outside the permitted range.
	ErrProbability = errors.New("invalid probability")
)

// #endregion errors

// #region layout
// Layout names the orientation of a supplied transition matrix.
type Layout int

const (
	// RowsCurrent means row = current symbol, column = previous symbol.
	RowsCurrent Layout = iota
	// RowsPrevious means row = previous symbol, column = current symbol.
	RowsPrevious
)

// #endregion layout

// #region tables
// SymbolTable holds the marginal probability of each alphabet symbol.
type SymbolTable struct {
	p [n]float64
}

// TransitionTable holds P(current | previous) for every ordered symbol pair,
// along with precomputed natural logarithms.
type TransitionTable struct {
	p    [n][n]float64
	logp [n][n]float64
}

// Model bundles the two tables consumed by the decoder.
type Model struct {
	Symbols     SymbolTable
	Transitions TransitionTable
}

// #endregion tables
