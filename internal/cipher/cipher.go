package cipher

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
)

const n = alphabet.Size

// #region errors
var (
	// ErrInvalidSymbol is returned when text contains a symbol the function does
	// not map. Given validated input this indicates a programming error.
	ErrInvalidSymbol = errors.New("symbol not in cipher function")
	// ErrNotPermutation is returned when a key is not a bijection on the alphabet.
	ErrNotPermutation = errors.New("key is not a permutation of the alphabet")
)

// #endregion errors

// #region function
// Function is a substitution key: a bijection on the alphabet. Position i
// holds the ciphertext symbol that decodes to alphabet position i.
//
// The zero value is not usable; build one with New, Identity, Random or
// Perturb.
type Function struct {
	symbols [n]byte
	pos     [256]int8
}

func fromSymbols(symbols [n]byte) Function {
	f := Function{symbols: symbols}
	for i := range f.pos {
		f.pos[i] = -1
	}
	for i, s := range symbols {
		f.pos[s] = int8(i)
	}
	return f
}

// New parses a key string of 28 distinct alphabet symbols.
func New(key string) (Function, error) {
	if len(key) != n {
		return Function{}, fmt.Errorf("%w: length %d, want %d", ErrNotPermutation, len(key), n)
	}
	var symbols [n]byte
	var seen [n]bool
	for i := 0; i < n; i++ {
		idx, ok := alphabet.Index(key[i])
		if !ok {
			return Function{}, fmt.Errorf("%w: %q is outside the alphabet", ErrNotPermutation, key[i])
		}
		if seen[idx] {
			return Function{}, fmt.Errorf("%w: %q repeats", ErrNotPermutation, key[i])
		}
		seen[idx] = true
		symbols[i] = key[i]
	}
	return fromSymbols(symbols), nil
}

// Identity returns the key that maps every symbol to itself.
func Identity() Function {
	var symbols [n]byte
	copy(symbols[:], alphabet.Symbols)
	return fromSymbols(symbols)
}

// #endregion function

// #region random
// Random draws a key uniformly from all permutations by sampling alphabet
// symbols without replacement.
func Random(rng *rand.Rand) Function {
	remaining := []byte(alphabet.Symbols)
	var symbols [n]byte
	for i := 0; i < n; i++ {
		k := rng.IntN(len(remaining))
		symbols[i] = remaining[k]
		remaining = append(remaining[:k], remaining[k+1:]...)
	}
	return fromSymbols(symbols)
}

// Perturb returns a copy of f with two distinct, uniformly chosen positions
// swapped. The proposal is symmetric.
func (f Function) Perturb(rng *rand.Rand) Function {
	i := rng.IntN(n)
	j := rng.IntN(n)
	for j == i {
		j = rng.IntN(n)
	}
	return f.Swap(i, j)
}

// Swap returns a copy of f with positions i and j exchanged.
func (f Function) Swap(i, j int) Function {
	a, b := f.symbols[i], f.symbols[j]
	f.symbols[i], f.symbols[j] = b, a
	f.pos[a], f.pos[b] = int8(j), int8(i)
	return f
}

// #endregion random

// #region apply
// Apply decodes ciphertext with f.
func (f Function) Apply(ciphertext []byte) ([]byte, error) {
	out := make([]byte, len(ciphertext))
	for i, c := range ciphertext {
		p := f.pos[c]
		if p < 0 {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidSymbol, c, i)
		}
		out[i] = alphabet.At(int(p))
	}
	return out, nil
}

// Encode enciphers plaintext with f, so that f.Apply(f.Encode(p)) == p.
func (f Function) Encode(plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, c := range plaintext {
		idx, ok := alphabet.Index(c)
		if !ok {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrInvalidSymbol, c, i)
		}
		out[i] = f.symbols[idx]
	}
	return out, nil
}

// PlainIndex returns the alphabet position that cipher symbol c decodes to,
// or -1 when c is not mapped.
func (f Function) PlainIndex(c byte) int {
	return int(f.pos[c])
}

// #endregion apply

// #region inspect
// Inverse returns the key g with g.Apply(x) == f.Encode(x).
func (f Function) Inverse() Function {
	var symbols [n]byte
	for j := 0; j < n; j++ {
		symbols[j] = alphabet.At(int(f.pos[alphabet.At(j)]))
	}
	return fromSymbols(symbols)
}

// Diff returns the positions at which f and g hold different symbols.
func (f Function) Diff(g Function) []int {
	var out []int
	for i := 0; i < n; i++ {
		if f.symbols[i] != g.symbols[i] {
			out = append(out, i)
		}
	}
	return out
}

// String returns the key as its 28 symbols in position order.
func (f Function) String() string {
	return string(f.symbols[:])
}

// #endregion inspect
