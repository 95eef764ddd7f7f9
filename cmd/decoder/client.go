package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/substitution-breaker/internal/codec"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Send ciphertexts to a running decoder server",
	Long: `Client reads one ciphertext per line from stdin and prints the server's
decoding. Prefix a line with "bp:" to request breakpoint detection.`,
	Args: cobra.NoArgs,
	Run:  clientMain,
}

func init() {
	clientCmd.Flags().String("addr", "", "server address (default from config)")
	clientCmd.Flags().String("model", "", "named model configured on the server")
	clientCmd.Flags().Duration("timeout", 2*time.Minute, "per-request timeout")
	rootCmd.AddCommand(clientCmd)
}

// #region main
func clientMain(cmd *cobra.Command, _ []string) {
	cfg := loadConfig(cmd)
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Addr
	}
	model, _ := cmd.Flags().GetString("model")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	client, err := codec.NewDecoderClient(addr)
	if err != nil {
		log.Fatalf("failed to connect to decoder service at %s: %v", addr, err)
	}
	defer client.Close()

	fmt.Printf("Decoder client connected to %s\n", addr)
	fmt.Println("Type a ciphertext (or 'quit' to exit):")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	turnNum := 0

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		turnNum++
		req := codec.DecodeRequest{Ciphertext: line, Model: model}
		if rest, ok := strings.CutPrefix(line, "bp:"); ok {
			req.Ciphertext = strings.TrimSpace(rest)
			req.HasBreakpoint = true
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		resp, err := client.Decode(ctx, req)
		cancel()
		if err != nil {
			log.Printf("decode error: %v", err)
			continue
		}

		fmt.Printf("\n%s\n\n", resp.Plaintext)
		fmt.Printf("[%d] run=%s breakpoint=%d score=%.4f flagged=%v\n",
			turnNum, shortID(resp.RunID), resp.Breakpoint, resp.Score, resp.Flagged)
	}
}

// #endregion main

// #region helpers
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
