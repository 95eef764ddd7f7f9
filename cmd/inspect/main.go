package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/substitution-breaker/internal/logging"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
	"github.com/danielpatrickdp/substitution-breaker/internal/verdict"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to decoder.db")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show single run detail")
	phase := flag.String("phase", "", "filter restarts and trace to one phase (full, locate, prefix, suffix)")
	trace := flag.Bool("trace", false, "include trace samples in run detail")
	flagged := flag.Bool("flagged", false, "list only runs the gate flagged")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/decoder.db [--last N] [--run id] [--phase name] [--trace] [--flagged] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	verdicts, err := verdict.NewStore(store.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open verdicts: %v\n", err)
		os.Exit(1)
	}

	if *runID != "" {
		if err := runDetailMode(store, verdicts, *runID, *phase, *trace, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := runListMode(store, verdicts, *last, *flagged, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	RunID      string  `json:"run_id"`
	Length     int     `json:"length"`
	Breakpoint int     `json:"breakpoint"`
	Score      float64 `json:"score"`
	ElapsedMS  int64   `json:"elapsed_ms"`
	CreatedAt  string  `json:"created_at"`
	Preview    string  `json:"preview"`
}

func runListMode(store *state.Store, verdicts *verdict.Store, last int, flaggedOnly, jsonOut bool) error {
	var runs []state.RunRecord
	if flaggedOnly {
		ids, err := verdicts.Flagged(last)
		if err != nil {
			return err
		}
		for _, id := range ids {
			r, err := store.GetRun(id)
			if err != nil {
				return err
			}
			runs = append(runs, r)
		}
	} else {
		var err error
		if runs, err = store.ListRuns(last); err != nil {
			return err
		}
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// Store returns DESC, reverse for chronological
	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[len(runs)-1-i] = listRow{
			RunID:      r.RunID,
			Length:     len(r.Ciphertext),
			Breakpoint: r.Breakpoint,
			Score:      r.Score,
			ElapsedMS:  r.ElapsedMS,
			CreatedAt:  r.CreatedAt.Format("2006-01-02T15:04:05Z"),
			Preview:    preview(r.Plaintext, 32),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %7s  %6s  %12s  %8s  %-20s  %s\n",
		"Run", "Length", "BP", "Score", "ms", "Time", "Plaintext")
	fmt.Printf("%-10s+-%7s+-%6s+-%12s+-%8s+-%-20s+-%s\n",
		"----------", "-------", "------", "------------", "--------", "--------------------", "--------------------------------")
	for _, r := range rows {
		bp := "-"
		if r.Breakpoint >= 0 {
			bp = fmt.Sprintf("%d", r.Breakpoint)
		}
		fmt.Printf("%-10s  %7d  %6s  %12.3f  %8d  %-20s  %s\n",
			shortID(r.RunID), r.Length, bp, r.Score, r.ElapsedMS, r.CreatedAt, r.Preview)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	RunID         string                `json:"run_id"`
	CreatedAt     string                `json:"created_at"`
	HasBreakpoint bool                  `json:"has_breakpoint"`
	Breakpoint    int                   `json:"breakpoint"`
	Score         float64               `json:"score"`
	Seed          uint64                `json:"seed"`
	ElapsedMS     int64                 `json:"elapsed_ms"`
	Config        json.RawMessage       `json:"config,omitempty"`
	Ciphertext    string                `json:"ciphertext"`
	Plaintext     string                `json:"plaintext"`
	Restarts      []state.RestartRecord `json:"restarts"`
	Verdicts      []verdict.Verdict     `json:"verdicts,omitempty"`
	Trace         []logging.TraceEntry  `json:"trace,omitempty"`
}

func runDetailMode(store *state.Store, verdicts *verdict.Store, runID, phase string, withTrace, jsonOut bool) error {
	run, err := store.GetRun(runID)
	if err != nil {
		return err
	}

	out := detailOutput{
		RunID:         run.RunID,
		CreatedAt:     run.CreatedAt.Format("2006-01-02T15:04:05Z"),
		HasBreakpoint: run.HasBreakpoint,
		Breakpoint:    run.Breakpoint,
		Score:         run.Score,
		Seed:          run.Seed,
		ElapsedMS:     run.ElapsedMS,
		Ciphertext:    run.Ciphertext,
		Plaintext:     run.Plaintext,
	}
	if run.ConfigJSON != "" {
		out.Config = json.RawMessage(run.ConfigJSON)
	}
	for _, r := range run.Restarts {
		if phase == "" || string(r.Phase) == phase {
			out.Restarts = append(out.Restarts, r)
		}
	}
	vs, err := verdicts.ForRun(runID)
	if err != nil {
		return err
	}
	for _, v := range vs {
		if phase == "" || v.Phase == phase {
			out.Verdicts = append(out.Verdicts, v)
		}
	}
	if withTrace {
		entries, err := logging.ListTrace(store.DB(), runID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if phase == "" || e.Phase == phase {
				out.Trace = append(out.Trace, e)
			}
		}
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Run:        %s\n", out.RunID)
	fmt.Printf("Created:    %s\n", out.CreatedAt)
	fmt.Printf("Breakpoint: %d (requested: %v)\n", out.Breakpoint, out.HasBreakpoint)
	fmt.Printf("Score:      %.4f\n", out.Score)
	fmt.Printf("Seed:       %d\n", out.Seed)
	fmt.Printf("Elapsed:    %dms\n", out.ElapsedMS)
	fmt.Printf("Plaintext:  %s\n", preview(out.Plaintext, 72))

	fmt.Printf("\nRestarts:\n")
	fmt.Printf("  %-7s %3s %12s %7s %7s %6s %5s  %s\n", "Phase", "#", "Score", "Iters", "Accept", "Conv", "Win", "Key")
	for _, r := range out.Restarts {
		win := ""
		if r.Winner {
			win = "*"
		}
		accept := 0.0
		if r.Iterations > 0 {
			accept = float64(r.Accepted) / float64(r.Iterations)
		}
		fmt.Printf("  %-7s %3d %12.3f %7d %7.3f %6v %5s  %s\n",
			r.Phase, r.Index, r.Score, r.Iterations, accept, r.Converged, win, r.Key)
	}

	if len(out.Verdicts) > 0 {
		fmt.Printf("\nGate:\n")
		for _, v := range out.Verdicts {
			fmt.Printf("  %-7s %-6s soft=%.3f gap=%.3f agree=%.3f  %s\n",
				v.Phase, v.Action, v.SoftScore, v.LikelihoodGap, v.Agreement, v.Reason)
		}
	}

	if withTrace {
		fmt.Printf("\nTrace (%d samples):\n", len(out.Trace))
		for _, e := range out.Trace {
			fmt.Printf("  %-7s r%-2d it=%-6d score=%-12.3f accept=%.3f  %s\n",
				e.Phase, e.Restart, e.Iteration, e.Score, e.AcceptanceRate, e.Preview)
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func preview(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
