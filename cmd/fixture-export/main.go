package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/config"
	"github.com/danielpatrickdp/substitution-breaker/internal/replay"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to decoder.db")
	configPath := flag.String("config", "decoder.yaml", "config file naming the language model")
	last := flag.Int("last", 4, "number of most recent runs to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--config decoder.yaml] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *configPath, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, configPath string, last int, outPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(last)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		return fmt.Errorf("no runs found in %s", dbPath)
	}

	// Store returns DESC, reverse for chronological
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}

	fmt.Printf("Found %d runs\n", len(runs))

	fixture, err := buildFixture(cfg, runs)
	if err != nil {
		return err
	}
	return writeFixture(fixture, outPath)
}

// #endregion extract

// #region output

// buildFixture turns stored decodes into regression cases. Each case
// re-enciphers the stored plaintext with keys recovered from the
// ciphertext/plaintext pairing, so it reproduces the stored ciphertext.
func buildFixture(cfg *config.Config, runs []state.RunRecord) (replay.Fixture, error) {
	cases := make([]replay.FixtureCase, 0, len(runs))
	expected := make([]replay.FixtureExpectedResult, 0, len(runs))

	for _, r := range runs {
		ct, pt := []byte(r.Ciphertext), []byte(r.Plaintext)
		if len(ct) != len(pt) {
			return replay.Fixture{}, fmt.Errorf("run %s: plaintext length %d, ciphertext %d", r.RunID, len(pt), len(ct))
		}
		split := len(ct)
		if r.HasBreakpoint && r.Breakpoint > 0 && r.Breakpoint < len(ct) {
			split = r.Breakpoint
		}

		fc := replay.FixtureCase{CaseID: shortID(r.RunID), Plaintext: r.Plaintext}
		key, err := recoverKey(ct[:split], pt[:split])
		if err != nil {
			return replay.Fixture{}, fmt.Errorf("run %s: %w", r.RunID, err)
		}
		fc.Key = key
		if split < len(ct) {
			second, err := recoverKey(ct[split:], pt[split:])
			if err != nil {
				return replay.Fixture{}, fmt.Errorf("run %s: %w", r.RunID, err)
			}
			fc.SecondKey = second
			fc.Breakpoint = split
		}

		cases = append(cases, fc)
		expected = append(expected, replay.FixtureExpectedResult{CaseID: fc.CaseID, Action: "pass"})
	}

	sc := cfg.SamplerConfig()
	if runs[0].ConfigJSON != "" {
		var stored sampler.Config
		if err := json.Unmarshal([]byte(runs[0].ConfigJSON), &stored); err == nil {
			sc = stored
		}
	}
	if sc.Seed == 0 {
		sc.Seed = runs[0].Seed
	}

	def := replay.DefaultReplayConfig().EvalConfig
	return replay.Fixture{
		Description: fmt.Sprintf("Session export: %d decoded runs from %s", len(runs), cfg.DB),
		Model: replay.FixtureModel{
			SymbolsPath:     cfg.Model.SymbolsPath,
			TransitionsPath: cfg.Model.TransitionsPath,
			SyntheticSeed:   cfg.Model.SyntheticSeed,
		},
		Config: replay.FixtureConfig{
			SamplerConfig: replay.FixtureSamplerConfig{
				Restarts:        sc.Restarts,
				StationaryLimit: sc.StationaryLimit,
				MaxIterations:   sc.MaxIterations,
				Selection:       string(sc.Selection),
				Workers:         sc.Workers,
				Seed:            sc.Seed,
			},
			EvalConfig: replay.FixtureEvalConfig{
				MinAccuracy:        def.MinAccuracy,
				MinSegmentAccuracy: def.MinSegmentAccuracy,
				MaxBreakpointError: def.MaxBreakpointError,
			},
		},
		Cases:           cases,
		ExpectedResults: expected,
	}, nil
}

// recoverKey builds a key whose encoding of pt is ct. Plain symbols that
// never occur take the unused cipher symbols in alphabet order.
func recoverKey(ct, pt []byte) (string, error) {
	var key [alphabet.Size]byte
	var used [256]bool
	for i := range ct {
		p, ok := alphabet.Index(pt[i])
		if !ok {
			return "", fmt.Errorf("offset %d: %w", i, alphabet.ErrInvalidSymbol)
		}
		switch {
		case key[p] == 0 && !used[ct[i]]:
			key[p] = ct[i]
			used[ct[i]] = true
		case key[p] != ct[i]:
			return "", fmt.Errorf("offset %d: %q decodes inconsistently", i, ct[i])
		}
	}
	next := 0
	for p := range key {
		if key[p] != 0 {
			continue
		}
		for used[alphabet.At(next)] {
			next++
		}
		key[p] = alphabet.At(next)
		used[key[p]] = true
	}
	return string(key[:]), nil
}

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d cases)\n", outPath, len(data), len(fixture.Cases))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
