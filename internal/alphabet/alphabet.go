package alphabet

import (
	"errors"
	"fmt"
)

// #region symbols
// Symbols is the fixed, ordered alphabet. All table and permutation indices are
// positions in this string.
const Symbols = "abcdefghijklmnopqrstuvwxyz ."

// Size is the number of symbols in the alphabet.
const Size = len(Symbols)

var index [256]int8

func init() {
	for i := range index {
		index[i] = -1
	}
	for i := 0; i < Size; i++ {
		index[Symbols[i]] = int8(i)
	}
}

// #endregion symbols

// #region errors
// ErrInvalidSymbol marks text containing a byte outside the alphabet.
var ErrInvalidSymbol = errors.New("symbol outside alphabet")

// #endregion errors

// #region lookup
// Index returns the alphabet position of b.
func Index(b byte) (int, bool) {
	i := index[b]
	return int(i), i >= 0
}

// At returns the symbol at position i.
func At(i int) byte {
	return Symbols[i]
}

// Contains reports whether b is an alphabet symbol.
func Contains(b byte) bool {
	return index[b] >= 0
}

// #endregion lookup

// #region validate
// Unique returns the distinct bytes of text in first-occurrence order.
func Unique(text []byte) []byte {
	var seen [256]bool
	out := make([]byte, 0, Size)
	for _, b := range text {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

// Validate rejects text containing any byte outside the alphabet. The error
// names every offending symbol.
func Validate(text []byte) error {
	var bad []byte
	for _, b := range Unique(text) {
		if !Contains(b) {
			bad = append(bad, b)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, bad)
	}
	return nil
}

// #endregion validate
