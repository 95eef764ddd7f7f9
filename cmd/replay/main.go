package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/substitution-breaker/internal/config"
	"github.com/danielpatrickdp/substitution-breaker/internal/eval"
	"github.com/danielpatrickdp/substitution-breaker/internal/replay"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to decoder.db (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	configPath := flag.String("config", "decoder.yaml", "config file for the language model (DB mode)")
	last := flag.Int("last", 10, "replay N most recent runs (DB mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/decoder.db [--config decoder.yaml] [--last N]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *configPath, *last)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

// runDBMode decodes stored runs again with their recorded settings and
// reports how closely the new plaintext agrees with the stored one.
func runDBMode(dbPath, configPath string, last int) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}
	model, err := cfg.Model.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load model: %v\n", err)
		return 2
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	runs, err := store.ListRuns(last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list runs: %v\n", err)
		return 2
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return 2
	}

	ctx := context.Background()
	results := make([]replay.ReplayResult, 0, len(runs))
	for _, run := range runs {
		sc := storedSamplerConfig(run, cfg.SamplerConfig())
		orch, err := replay.NewOrchestrator(model, sc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %s: %v\n", run.RunID, err)
			return 2
		}
		res, err := orch.Decode(ctx, []byte(run.Ciphertext), run.HasBreakpoint)
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %s: %v\n", run.RunID, err)
			return 2
		}
		agreement, err := eval.Accuracy(res.Plaintext, []byte(run.Plaintext))
		if err != nil {
			fmt.Fprintf(os.Stderr, "run %s: %v\n", run.RunID, err)
			return 2
		}
		action := "pass"
		if agreement < 1 || res.Breakpoint != run.Breakpoint {
			action = "fail"
		}
		results = append(results, replay.ReplayResult{
			CaseID: shortID(run.RunID),
			Action: action,
			WithBreakpoint: replay.Outcome{
				RunID: res.RunID, Plaintext: res.Plaintext, Breakpoint: res.Breakpoint, Accuracy: agreement,
			},
		})
	}

	expected := make([]string, len(results))
	for i := range expected {
		expected[i] = "pass"
	}
	return printComparison(results, expected)
}

// storedSamplerConfig returns the sampler settings recorded with run. When
// the run drew its own seed, the recorded seed is pinned.
func storedSamplerConfig(run state.RunRecord, fallback sampler.Config) sampler.Config {
	sc := fallback
	if run.ConfigJSON != "" {
		var stored sampler.Config
		if err := json.Unmarshal([]byte(run.ConfigJSON), &stored); err == nil {
			sc = stored
		}
	}
	if sc.Seed == 0 {
		sc.Seed = run.Seed
	}
	return sc
}

// #endregion db-mode

// #region output

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results, err := replay.Run(context.Background(), f, filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}

	expected := make([]string, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = e.Action
	}

	return printComparison(results, expected)
}

// printComparison outputs a comparison table and returns exit code.
// expected holds the reference actions (from DB or fixture).
func printComparison(results []replay.ReplayResult, expected []string) int {
	fmt.Printf("%-12s| %-9s| %-9s| %-9s| %-9s| %s\n", "Case", "Expected", "Replayed", "Acc (bp)", "Acc", "Match")
	fmt.Printf("%-12s+%-10s+%-10s+%-10s+%-10s+%s\n",
		"------------", "----------", "----------", "----------", "----------", "------")

	matches := 0
	total := len(results)
	if len(expected) < total {
		total = len(expected)
	}

	for i := 0; i < total; i++ {
		r := results[i]
		exp := expected[i]
		match := "DIFF"
		if exp == r.Action {
			match = "OK"
			matches++
		}
		fmt.Printf("%-12s| %-9s| %-9s| %-9.4f| %-9.4f| %s\n",
			r.CaseID, exp, r.Action, r.WithBreakpoint.Accuracy, r.WithoutBreakpoint.Accuracy, match)
	}

	sum := replay.Summarize(results)
	diverge := total - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", total, matches, diverge)
	fmt.Printf("Mean accuracy: %.4f with breakpoint handling, %.4f without\n",
		sum.MeanAccuracy, sum.MeanAccuracyNoBreakpoint)

	if diverge > 0 {
		return 1
	}
	return 0
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
