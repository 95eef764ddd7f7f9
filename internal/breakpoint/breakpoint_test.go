package breakpoint

import (
	"errors"
	"testing"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
)

// #region helpers
// successorTable strongly favors cur == prev+1 (mod 28).
func successorTable(t *testing.T) *langmodel.TransitionTable {
	t.Helper()
	rows := make([][]float64, alphabet.Size)
	for cur := range rows {
		rows[cur] = make([]float64, alphabet.Size)
		for prev := range rows[cur] {
			if cur == (prev+1)%alphabet.Size {
				rows[cur][prev] = 0.9
			} else {
				rows[cur][prev] = 0.1 / float64(alphabet.Size-1)
			}
		}
	}
	table, err := langmodel.NewTransitionTableFromRows(rows)
	if err != nil {
		t.Fatalf("build table: %v", err)
	}
	return &table
}

// stepText writes symbols advancing by step, switching to the other step at
// split.
func stepText(length, split, before, after int) []byte {
	out := make([]byte, length)
	idx := 0
	for i := range out {
		out[i] = alphabet.At(idx)
		step := before
		if i+1 >= split {
			step = after
		}
		idx = (idx + step) % alphabet.Size
	}
	return out
}

// segmentText writes runs of symbols, advancing by steps[i] for the
// transitions leaving run i.
func segmentText(lengths, steps []int) []byte {
	var out []byte
	idx := 0
	for i, n := range lengths {
		for j := 0; j < n; j++ {
			out = append(out, alphabet.At(idx))
			idx = (idx + steps[i]) % alphabet.Size
		}
	}
	return out
}

// #endregion helpers

func TestThreshold(t *testing.T) {
	cases := map[int]int{
		2000: 40,
		5000: 100,
		25:   1, // 0.5 rounds to even (0), then clamps to 1
		75:   2, // 1.5 rounds to even
		125:  2, // 2.5 rounds to even
		10:   1,
	}
	for length, want := range cases {
		if got := Threshold(length); got != want {
			t.Errorf("Threshold(%d) = %d, want %d", length, got, want)
		}
	}
}

func TestDetectFindsDrop(t *testing.T) {
	table := successorTable(t)
	const length, split = 2000, 1200
	text := stepText(length, split, 1, 2)

	bp, sig, err := Detect(text, table)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sig.Threshold != 40 {
		t.Fatalf("expected threshold 40, got %d", sig.Threshold)
	}
	if len(sig.Transitions) != length-1 {
		t.Fatalf("expected %d transitions, got %d", length-1, len(sig.Transitions))
	}
	if len(sig.Average) != len(sig.Transitions)-sig.Threshold {
		t.Fatalf("unexpected average length %d", len(sig.Average))
	}
	if len(sig.Derivative) != len(sig.Average)-sig.Threshold {
		t.Fatalf("unexpected derivative length %d", len(sig.Derivative))
	}
	if diff := bp - split; diff < -2*sig.Threshold || diff > 2*sig.Threshold {
		t.Fatalf("breakpoint %d too far from %d", bp, split)
	}
}

func TestDetectFindsRise(t *testing.T) {
	table := successorTable(t)
	const length, split = 3000, 900
	text := stepText(length, split, 2, 1)

	bp, sig, err := Detect(text, table)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if sig.Derivative[sig.MaxIndex] <= 0 {
		t.Fatal("expected a positive derivative peak")
	}
	if diff := bp - split; diff < -2*sig.Threshold || diff > 2*sig.Threshold {
		t.Fatalf("breakpoint %d too far from %d", bp, split)
	}
}

func TestBreakpointTieFavorsDrop(t *testing.T) {
	sig := Signal{
		Threshold:  5,
		Derivative: []float64{-1, 0, 1},
		MinIndex:   0,
		MaxIndex:   2,
	}
	if got := sig.Breakpoint(); got != 5 {
		t.Fatalf("expected tie to resolve to the minimum (5), got %d", got)
	}
}

func TestRepeatedExtremesResolveToFirst(t *testing.T) {
	table := successorTable(t)
	// Two identical drops (at 200 and 600) and two identical rises (at 400
	// and 800).
	text := segmentText([]int{200, 200, 200, 200, 200}, []int{1, 2, 1, 2, 1})

	sig, err := NewSignal(text, table)
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	w := sig.Threshold
	half := len(sig.Derivative) / 2

	lo := sig.Derivative[sig.MinIndex]
	secondLo := sig.Derivative[half]
	for _, d := range sig.Derivative[half:] {
		if d < secondLo {
			secondLo = d
		}
	}
	if lo != secondLo {
		t.Fatalf("expected equal minima, got %v and %v", lo, secondLo)
	}
	if sig.MinIndex >= half {
		t.Fatalf("expected first minimum, got index %d of %d", sig.MinIndex, len(sig.Derivative))
	}
	if bp := sig.MinIndex + w; bp < 200-2*w || bp > 200+2*w {
		t.Fatalf("minimum maps to %d, want near 200", bp)
	}
	if bp := sig.MaxIndex + w; bp < 400-2*w || bp > 400+2*w {
		t.Fatalf("maximum maps to %d, want near 400", bp)
	}
}

func TestDetectTooShort(t *testing.T) {
	table := successorTable(t)
	_, _, err := Detect([]byte("abc"), table)
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if _, _, err := Detect([]byte("abcde"), table); err != nil {
		t.Fatalf("length 5 should produce a derivative: %v", err)
	}
}

func TestDetectRejectsForeignSymbols(t *testing.T) {
	if _, _, err := Detect([]byte("ABCDEFGHIJ"), successorTable(t)); !errors.Is(err, alphabet.ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
}
