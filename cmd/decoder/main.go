package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/substitution-breaker/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "decoder",
	Short: "Decoder breaks substitution ciphers with Metropolis-Hastings sampling",
	Long: `Decoder recovers plaintext from ciphertext produced by a substitution cipher
over lowercase letters, space and period. It can also locate a single point where
the cipher key changes, and serve decoding over gRPC.`,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "decoder.yaml", "YAML config file (optional)")
	rootCmd.PersistentFlags().String("env", ".env", "dotenv file loaded before the config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv file and YAML config named by the persistent
// flags.
func loadConfig(cmd *cobra.Command) *config.Config {
	envPath, _ := cmd.Flags().GetString("env")
	cfgPath, _ := cmd.Flags().GetString("config")

	if err := config.LoadEnv(envPath); err != nil {
		log.Fatalf("load env: %v", err)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return cfg
}
