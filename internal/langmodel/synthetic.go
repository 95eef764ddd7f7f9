package langmodel

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
)

// #region sample
// Sample draws a text of the given length from the model: the first symbol
// from the marginal table, each later symbol from P(· | previous).
func (m *Model) Sample(rng *rand.Rand, length int) []byte {
	if length <= 0 {
		return nil
	}
	out := make([]byte, length)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = m.Symbols.Prob(i)
	}
	prev := draw(rng, weights)
	out[0] = alphabet.At(prev)
	for k := 1; k < length; k++ {
		for cur := range weights {
			weights[cur] = m.Transitions.Prob(cur, prev)
		}
		prev = draw(rng, weights)
		out[k] = alphabet.At(prev)
	}
	return out
}

func draw(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	u := rng.Float64() * total
	for i, w := range weights {
		u -= w
		if u < 0 {
			return i
		}
	}
	return len(weights) - 1
}

// #endregion sample

// #region synthetic
// Synthetic builds a reproducible model with geometrically decaying symbol
// frequencies and seeded pseudo-random bigram structure. Used for tests and
// replay fixtures when no corpus tables are available.
func Synthetic(seed uint64) *Model {
	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))

	w := make([]float64, n)
	var wsum float64
	for i := range w {
		w[i] = math.Pow(0.8, float64(i))
		wsum += w[i]
	}
	marginal := make([]float64, n)
	for i := range w {
		marginal[i] = w[i] / wsum
	}

	data := make([]float64, n*n)
	for prev := 0; prev < n; prev++ {
		var col float64
		for cur := 0; cur < n; cur++ {
			v := w[cur] * math.Exp(rng.Float64()*3-1.5)
			data[cur*n+prev] = v
			col += v
		}
		for cur := 0; cur < n; cur++ {
			data[cur*n+prev] /= col
		}
	}

	sym, err := NewSymbolTable(marginal)
	if err != nil {
		panic(err)
	}
	trans, err := NewTransitionTable(mat.NewDense(n, n, data), RowsCurrent)
	if err != nil {
		panic(err)
	}
	return &Model{Symbols: sym, Transitions: trans}
}

// #endregion synthetic
