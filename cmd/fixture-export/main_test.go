package main

import (
	"testing"

	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
	"github.com/danielpatrickdp/substitution-breaker/internal/config"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
)

func TestRecoverKeyReproducesCiphertext(t *testing.T) {
	key, err := cipher.New("zyxwvutsrqponmlkjihgfedcba. ")
	if err != nil {
		t.Fatal(err)
	}
	pt := []byte("hello there.")
	ct, err := key.Encode(pt)
	if err != nil {
		t.Fatal(err)
	}

	got, err := recoverKey(ct, pt)
	if err != nil {
		t.Fatalf("recoverKey: %v", err)
	}
	rec, err := cipher.New(got)
	if err != nil {
		t.Fatalf("recovered key is not a permutation: %v", err)
	}
	again, err := rec.Encode(pt)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(ct) {
		t.Errorf("re-encoded %q, want %q", again, ct)
	}
}

func TestRecoverKeyInconsistent(t *testing.T) {
	if _, err := recoverKey([]byte("ab"), []byte("aa")); err == nil {
		t.Error("expected error when one plain symbol maps to two cipher symbols")
	}
	if _, err := recoverKey([]byte("aa"), []byte("ab")); err == nil {
		t.Error("expected error when two plain symbols share a cipher symbol")
	}
}

func TestBuildFixtureSplitsBreakpointRuns(t *testing.T) {
	runs := []state.RunRecord{
		{RunID: "run-single-key", Ciphertext: "bcd", Plaintext: "abc", Breakpoint: -1, Seed: 9},
		{RunID: "run-two-keys", Ciphertext: "bbzz", Plaintext: "aaaa", HasBreakpoint: true, Breakpoint: 2},
	}
	f, err := buildFixture(config.DefaultConfig(), runs)
	if err != nil {
		t.Fatalf("buildFixture: %v", err)
	}
	if len(f.Cases) != 2 || len(f.ExpectedResults) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(f.Cases))
	}
	if f.Cases[0].Breakpoint != 0 || f.Cases[0].SecondKey != "" {
		t.Errorf("single-key run exported with a breakpoint: %+v", f.Cases[0])
	}
	if f.Cases[1].Breakpoint != 2 || f.Cases[1].SecondKey == "" {
		t.Errorf("two-key run lost its breakpoint: %+v", f.Cases[1])
	}
	if f.Config.SamplerConfig.Seed != 9 {
		t.Errorf("seed = %d, want 9", f.Config.SamplerConfig.Seed)
	}

	for _, fc := range f.Cases {
		c, err := fc.ToCase(nil)
		if err != nil {
			t.Fatalf("ToCase(%s): %v", fc.CaseID, err)
		}
		ct, err := c.Ciphertext()
		if err != nil {
			t.Fatalf("Ciphertext(%s): %v", fc.CaseID, err)
		}
		want := runs[0].Ciphertext
		if fc.CaseID == shortID(runs[1].RunID) {
			want = runs[1].Ciphertext
		}
		if string(ct) != want {
			t.Errorf("case %s ciphertext %q, want %q", fc.CaseID, ct, want)
		}
	}
}
