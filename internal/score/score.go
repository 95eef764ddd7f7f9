package score

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
)

// #region scorer
// Scorer computes bigram log-likelihoods against a fixed transition table.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	table *langmodel.TransitionTable
}

// NewScorer returns a Scorer reading from table.
func NewScorer(table *langmodel.TransitionTable) *Scorer {
	return &Scorer{table: table}
}

// Table returns the transition table the scorer reads from.
func (s *Scorer) Table() *langmodel.TransitionTable {
	return s.table
}

// Score returns the sum over i >= 1 of log_base P(text[i] | text[i-1]).
//
// The unigram probability of text[0] is not included, so the result is not a
// normalized log-probability. Scores are only comparable between decodings
// of the same ciphertext. text must consist of alphabet symbols.
func (s *Scorer) Score(text []byte, base float64) float64 {
	if len(text) < 2 {
		return 0
	}
	var sum float64
	prev := mustIndex(text[0])
	for _, b := range text[1:] {
		cur := mustIndex(b)
		sum += s.table.LogProb(cur, prev)
		prev = cur
	}
	return sum / math.Log(base)
}

// ScoreCounts returns the score f.Apply(ciphertext) would receive, computed
// from the ciphertext's bigram counts without decoding it.
func (s *Scorer) ScoreCounts(c *Counts, f cipher.Function, base float64) float64 {
	var plain [alphabet.Size]int
	for a := 0; a < alphabet.Size; a++ {
		plain[a] = f.PlainIndex(alphabet.At(a))
	}
	var sum float64
	for _, p := range c.pairs {
		sum += p.count * s.table.LogProb(plain[p.cur], plain[p.prev])
	}
	return sum / math.Log(base)
}

func mustIndex(b byte) int {
	i, ok := alphabet.Index(b)
	if !ok {
		panic(fmt.Sprintf("score: symbol %q outside alphabet", b))
	}
	return i
}

// #endregion scorer

// #region counts
type pair struct {
	cur, prev int
	count     float64
}

// Counts is the bigram count matrix of a ciphertext, indexed by the alphabet
// positions of the cipher symbols themselves.
type Counts struct {
	length int
	pairs  []pair
}

// NewCounts tallies the consecutive symbol pairs of ciphertext.
func NewCounts(ciphertext []byte) (*Counts, error) {
	if err := alphabet.Validate(ciphertext); err != nil {
		return nil, err
	}
	var grid [alphabet.Size][alphabet.Size]int
	for i := 1; i < len(ciphertext); i++ {
		cur, _ := alphabet.Index(ciphertext[i])
		prev, _ := alphabet.Index(ciphertext[i-1])
		grid[cur][prev]++
	}
	c := &Counts{length: len(ciphertext)}
	for cur := range grid {
		for prev, k := range grid[cur] {
			if k > 0 {
				c.pairs = append(c.pairs, pair{cur: cur, prev: prev, count: float64(k)})
			}
		}
	}
	return c, nil
}

// Len returns the length of the tallied ciphertext.
func (c *Counts) Len() int {
	return c.length
}

// #endregion counts
