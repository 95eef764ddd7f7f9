package langmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
)

// #region symbol-table
// NewSymbolTable builds a SymbolTable from values in alphabet order. Every
// value must lie in (0, 1].
func NewSymbolTable(values []float64) (SymbolTable, error) {
	var t SymbolTable
	if len(values) != n {
		return t, fmt.Errorf("%w: symbol table has %d values, want %d", ErrShape, len(values), n)
	}
	for i, v := range values {
		if math.IsNaN(v) || v <= 0 || v > 1 {
			return t, fmt.Errorf("%w: symbol %q = %v", ErrProbability, alphabet.At(i), v)
		}
		t.p[i] = v
	}
	return t, nil
}

// Prob returns the marginal probability of the symbol at alphabet position i.
func (t SymbolTable) Prob(i int) float64 {
	return t.p[i]
}

// Entropy returns the sum over text positions of p*log_base(p), where p is
// the marginal probability of the symbol at that position. Symbols outside
// the alphabet are skipped.
func (t SymbolTable) Entropy(text []byte, base float64) float64 {
	lb := math.Log(base)
	var h float64
	for _, b := range text {
		i, ok := alphabet.Index(b)
		if !ok {
			continue
		}
		p := t.p[i]
		h += p * math.Log(p) / lb
	}
	return h
}

// #endregion symbol-table

// #region transition-table
// NewTransitionTable builds a TransitionTable from a 28x28 matrix in the given
// layout. Entries of exactly zero are floored to ZeroFloor.
func NewTransitionTable(m mat.Matrix, layout Layout) (TransitionTable, error) {
	var t TransitionTable
	r, c := m.Dims()
	if r != n || c != n {
		return t, fmt.Errorf("%w: transition matrix is %dx%d, want %dx%d", ErrShape, r, c, n, n)
	}
	if layout == RowsPrevious {
		m = m.T()
	}
	for cur := 0; cur < n; cur++ {
		for prev := 0; prev < n; prev++ {
			v := m.At(cur, prev)
			if math.IsNaN(v) || v < 0 || v > 1 {
				return t, fmt.Errorf("%w: transition %q->%q = %v", ErrProbability, alphabet.At(prev), alphabet.At(cur), v)
			}
			if v == 0 {
				v = ZeroFloor
			}
			t.p[cur][prev] = v
			t.logp[cur][prev] = math.Log(v)
		}
	}
	return t, nil
}

// NewTransitionTableFromRows is a convenience wrapper over NewTransitionTable
// for row-major data in RowsCurrent layout.
func NewTransitionTableFromRows(rows [][]float64) (TransitionTable, error) {
	if len(rows) != n {
		return TransitionTable{}, fmt.Errorf("%w: transition table has %d rows, want %d", ErrShape, len(rows), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range rows {
		if len(row) != n {
			return TransitionTable{}, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(row), n)
		}
		data = append(data, row...)
	}
	return NewTransitionTable(mat.NewDense(n, n, data), RowsCurrent)
}

// Prob returns P(cur | prev) by alphabet position.
func (t *TransitionTable) Prob(cur, prev int) float64 {
	return t.p[cur][prev]
}

// LogProb returns the natural log of P(cur | prev).
func (t *TransitionTable) LogProb(cur, prev int) float64 {
	return t.logp[cur][prev]
}

// Matrix returns a copy of the table as a dense matrix in RowsCurrent layout.
func (t *TransitionTable) Matrix() *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for cur := 0; cur < n; cur++ {
		d.SetRow(cur, t.p[cur][:])
	}
	return d
}

// #endregion transition-table
