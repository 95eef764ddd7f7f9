package replay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
)

// #region fixture-tests

// TestFixture_SyntheticSession loads the synthetic_session fixture, replays
// it, and compares each case's Action against the expected action.
func TestFixture_SyntheticSession(t *testing.T) {
	fixturePath := filepath.Join("testdata", "synthetic_session.json")
	f, err := LoadFixture(fixturePath)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, err := Run(context.Background(), f, filepath.Dir(fixturePath))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(results) != len(f.ExpectedResults) {
		t.Fatalf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}

	for i, expected := range f.ExpectedResults {
		actual := results[i]
		if actual.CaseID != expected.CaseID {
			t.Errorf("case %d: expected case_id=%s, got %s", i, expected.CaseID, actual.CaseID)
		}
		if actual.Action != expected.Action {
			t.Errorf("case %d (%s): expected action=%s, got action=%s (reason: %s)",
				i, expected.CaseID, expected.Action, actual.Action, actual.Reason)
		}
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// #endregion fixture-tests

// #region conversion-tests

func TestToCase_ExplicitPlaintext(t *testing.T) {
	fc := FixtureCase{CaseID: "c", Plaintext: "the end.", Key: alphabet.Symbols}
	c, err := fc.ToCase(langmodel.Synthetic(1))
	if err != nil {
		t.Fatalf("ToCase: %v", err)
	}
	if string(c.Plaintext) != "the end." || c.Breakpoint != -1 {
		t.Fatalf("unexpected case: %+v", c)
	}
	ct, err := c.Ciphertext()
	if err != nil {
		t.Fatalf("Ciphertext: %v", err)
	}
	if string(ct) != "the end." {
		t.Fatalf("identity key should leave text unchanged, got %q", ct)
	}
}

func TestToCase_SampledIsDeterministic(t *testing.T) {
	m := langmodel.Synthetic(3)
	fc := FixtureCase{CaseID: "s", Length: 300, TextSeed: 11, Breakpoint: 120}
	a, err := fc.ToCase(m)
	if err != nil {
		t.Fatalf("ToCase: %v", err)
	}
	b, err := fc.ToCase(m)
	if err != nil {
		t.Fatalf("ToCase: %v", err)
	}
	if string(a.Plaintext) != string(b.Plaintext) || a.Key != b.Key || a.SecondKey != b.SecondKey {
		t.Fatal("same text seed should give the same case")
	}
	if len(a.Plaintext) != 300 || a.Breakpoint != 120 {
		t.Fatalf("unexpected case shape: len=%d bp=%d", len(a.Plaintext), a.Breakpoint)
	}
}

func TestToCase_Errors(t *testing.T) {
	m := langmodel.Synthetic(1)
	cases := map[string]FixtureCase{
		"foreign symbol": {Plaintext: "Hello"},
		"no text":        {},
		"bad key":        {Plaintext: "abc", Key: "abc"},
		"breakpoint out": {Plaintext: "abc", Breakpoint: 3},
	}
	for name, fc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := fc.ToCase(m); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	_, err := (&FixtureCase{Plaintext: "Hello"}).ToCase(m)
	if !errors.Is(err, alphabet.ErrInvalidSymbol) {
		t.Fatalf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestToReplayConfig_Defaults(t *testing.T) {
	fc := FixtureConfig{SamplerConfig: FixtureSamplerConfig{Restarts: 3, Selection: "final", Seed: 5}}
	cfg := fc.ToReplayConfig()
	def := sampler.DefaultConfig()

	if cfg.SamplerConfig.Restarts != 3 || cfg.SamplerConfig.Seed != 5 {
		t.Fatalf("overrides not applied: %+v", cfg.SamplerConfig)
	}
	if cfg.SamplerConfig.Selection != sampler.SelectFinal {
		t.Fatalf("expected final selection, got %s", cfg.SamplerConfig.Selection)
	}
	if cfg.SamplerConfig.StationaryLimit != def.StationaryLimit || cfg.SamplerConfig.MaxIterations != def.MaxIterations {
		t.Fatalf("zero fields should keep defaults: %+v", cfg.SamplerConfig)
	}
}

func TestFixtureModel_LoadCSV(t *testing.T) {
	dir := t.TempDir()
	m := langmodel.Synthetic(2)

	symbols := ""
	for i := 0; i < alphabet.Size; i++ {
		if i > 0 {
			symbols += ","
		}
		symbols += "0.03"
	}
	if err := os.WriteFile(filepath.Join(dir, "sym.csv"), []byte(symbols+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	trans := ""
	for cur := 0; cur < alphabet.Size; cur++ {
		for prev := 0; prev < alphabet.Size; prev++ {
			if prev > 0 {
				trans += ","
			}
			trans += formatFloat(m.Transitions.Prob(cur, prev))
		}
		trans += "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "trans.csv"), []byte(trans), 0644); err != nil {
		t.Fatal(err)
	}

	fm := FixtureModel{SymbolsPath: "sym.csv", TransitionsPath: "trans.csv"}
	loaded, err := fm.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := loaded.Transitions.Prob(4, 7), m.Transitions.Prob(4, 7); got != want {
		t.Fatalf("transition mismatch: got %v want %v", got, want)
	}
}

// #endregion conversion-tests
