package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/substitution-breaker/internal/gate"
	"github.com/danielpatrickdp/substitution-breaker/internal/logging"
	"github.com/danielpatrickdp/substitution-breaker/internal/orchestrator"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
	"github.com/danielpatrickdp/substitution-breaker/internal/score"
	"github.com/danielpatrickdp/substitution-breaker/internal/state"
	"github.com/danielpatrickdp/substitution-breaker/internal/verdict"
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a ciphertext file",
	Long: `Decode reads ciphertext from --in (or stdin), recovers the plaintext and writes
it to --out (or stdout). With --breakpoint the text is assumed to switch keys once.`,
	Args: cobra.NoArgs,
	Run:  decodeMain,
}

func init() {
	decodeCmd.Flags().StringP("in", "i", "", "ciphertext file (default stdin)")
	decodeCmd.Flags().StringP("out", "o", "", "plaintext file (default stdout)")
	decodeCmd.Flags().BoolP("breakpoint", "b", false, "ciphertext switches keys once")
	decodeCmd.Flags().Bool("no-record", false, "do not persist the run")
	decodeCmd.Flags().Bool("trace", false, "persist sampler progress samples")
	rootCmd.AddCommand(decodeCmd)
}

func decodeMain(cmd *cobra.Command, _ []string) {
	cfg := loadConfig(cmd)
	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	hasBreakpoint, _ := cmd.Flags().GetBool("breakpoint")
	noRecord, _ := cmd.Flags().GetBool("no-record")
	withTrace, _ := cmd.Flags().GetBool("trace")

	ciphertext, err := readInput(in)
	if err != nil {
		log.Fatalf("read ciphertext: %v", err)
	}

	model, err := cfg.Model.Load()
	if err != nil {
		log.Fatalf("load model: %v", err)
	}
	sc := cfg.SamplerConfig()
	if withTrace && sc.ProgressEvery == 0 {
		sc.ProgressEvery = 1000
	}
	scorer := score.NewScorer(&model.Transitions)
	smp, err := sampler.NewSampler(scorer, sc)
	if err != nil {
		log.Fatalf("sampler: %v", err)
	}
	orch := orchestrator.NewOrchestrator(smp, scorer)
	if gc, ok := cfg.GateConfig(); ok {
		orch = orch.WithGate(gate.NewGate(gc, model))
	}

	var sink *logging.TraceSink
	var verdicts *verdict.Store
	if !noRecord {
		store, err := state.NewStore(cfg.DB)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}
		defer store.Close()
		orch = orch.WithRecorder(store)
		if verdicts, err = verdict.NewStore(store.DB()); err != nil {
			log.Fatalf("verdict store: %v", err)
		}
		if withTrace {
			sink = logging.NewTraceSink(store.DB())
			orch = orch.WithTracer(sink)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := orch.Decode(ctx, ciphertext, hasBreakpoint)
	if err != nil {
		log.Fatalf("decode: %v", err)
	}
	if verdicts != nil {
		if err := verdicts.SaveResult(res); err != nil {
			log.Printf("verdicts not saved: %v", err)
		}
	}
	if sink != nil && sink.Err() != nil {
		log.Printf("trace incomplete: %v", sink.Err())
	}

	if err := writeOutput(out, res.Plaintext); err != nil {
		log.Fatalf("write plaintext: %v", err)
	}
	fmt.Fprintf(os.Stderr, "[%s] breakpoint=%d score=%.4f elapsed=%s\n",
		res.RunID, res.Breakpoint, res.Score, res.Elapsed)
	for _, seg := range res.Segments {
		if seg.Verdict != nil && seg.Verdict.Action == "flag" {
			fmt.Fprintf(os.Stderr, "warning: %s segment [%d,%d) may not be decoded: %s\n",
				seg.Phase, seg.Start, seg.End, seg.Verdict.Reason)
		}
	}
}

func readInput(path string) ([]byte, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return []byte(strings.TrimRight(string(data), "\r\n")), nil
}

func writeOutput(path string, text []byte) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(os.Stdout, string(text))
		return err
	}
	return os.WriteFile(path, append(text, '\n'), 0o644)
}
