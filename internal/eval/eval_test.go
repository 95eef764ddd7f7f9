package eval

import (
	"errors"
	"testing"
)

func makeSample(decoded, reference string) Sample {
	return Sample{
		Decoded:            []byte(decoded),
		Reference:          []byte(reference),
		Breakpoint:         -1,
		ExpectedBreakpoint: -1,
	}
}

func TestAccuracy(t *testing.T) {
	acc, err := Accuracy([]byte("the cat"), []byte("the bat"))
	if err != nil {
		t.Fatalf("Accuracy: %v", err)
	}
	if want := 6.0 / 7.0; acc != want {
		t.Fatalf("expected %v, got %v", want, acc)
	}
}

func TestAccuracyEmpty(t *testing.T) {
	acc, err := Accuracy(nil, nil)
	if err != nil || acc != 0 {
		t.Fatalf("expected 0, nil; got %v, %v", acc, err)
	}
}

func TestAccuracyLengthMismatch(t *testing.T) {
	if _, err := Accuracy([]byte("ab"), []byte("abc")); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestEvalPassesOnExactDecode(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result, err := h.Run(makeSample("a quick test.", "a quick test."))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if result.Accuracy != 1 {
		t.Fatalf("expected accuracy 1, got %v", result.Accuracy)
	}
}

func TestEvalFailsOnLowAccuracy(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result, err := h.Run(makeSample("xxxxxxxxxx", "abcdefghij"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Passed {
		t.Fatal("expected fail on zero accuracy")
	}
}

func TestEvalFailsOnBadSegment(t *testing.T) {
	config := DefaultEvalConfig()
	config.MinAccuracy = 0.5
	h := NewEvalHarness(config)

	// First half perfect, second half wrong.
	s := makeSample("aaaaabbbbb", "aaaaaccccc")
	s.Segments = []Span{{0, 5}, {5, 10}}
	result, err := h.Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Passed {
		t.Fatal("expected fail on segment accuracy")
	}

	foundFail := false
	for _, m := range result.Metrics {
		if m.Name == "segment_1_accuracy" && !m.Pass {
			foundFail = true
		}
		if m.Name == "segment_spread" && m.Value == 0 {
			t.Fatal("expected nonzero spread between segments")
		}
	}
	if !foundFail {
		t.Fatal("expected segment_1_accuracy metric to fail")
	}
}

func TestEvalBreakpointError(t *testing.T) {
	config := DefaultEvalConfig()
	config.MaxBreakpointError = 3
	h := NewEvalHarness(config)

	s := makeSample("abcdefghij", "abcdefghij")
	s.ExpectedBreakpoint = 5
	s.Breakpoint = 7
	result, err := h.Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Passed {
		t.Fatalf("expected pass within tolerance, got: %s", result.Reason)
	}

	s.Breakpoint = -1
	result, err = h.Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Passed {
		t.Fatal("expected fail when no breakpoint was detected")
	}
}

func TestEvalRejectsBadSegment(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSample("abc", "abc")
	s.Segments = []Span{{0, 5}}
	if _, err := h.Run(s); err == nil {
		t.Fatal("expected error for out-of-range segment")
	}
}

func TestEvalMetricCount(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	s := makeSample("abcdef", "abcdef")
	s.Segments = []Span{{0, 3}, {3, 6}}
	s.ExpectedBreakpoint = 3
	s.Breakpoint = 3

	result, err := h.Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Expect: accuracy + 2 segments + spread + breakpoint = 5 metrics
	if len(result.Metrics) != 5 {
		t.Fatalf("expected 5 metrics, got %d", len(result.Metrics))
	}
}
