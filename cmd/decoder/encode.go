package main

import (
	"fmt"
	"log"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encrypt plaintext with a substitution key",
	Long: `Encode applies a substitution key to plaintext. Without --key a random key is
drawn from --seed and printed to stderr so the ciphertext can be checked later.`,
	Args: cobra.NoArgs,
	Run:  encodeMain,
}

func init() {
	encodeCmd.Flags().StringP("in", "i", "", "plaintext file (default stdin)")
	encodeCmd.Flags().StringP("out", "o", "", "ciphertext file (default stdout)")
	encodeCmd.Flags().StringP("key", "k", "", "28-symbol key, position i holds the cipher symbol for plaintext symbol i")
	encodeCmd.Flags().Uint64("seed", 1, "seed for a random key")
	encodeCmd.Flags().Int("split", -1, "switch to a second key at this offset")
	encodeCmd.Flags().String("second-key", "", "key used from --split on (random when empty)")
	rootCmd.AddCommand(encodeCmd)
}

func encodeMain(cmd *cobra.Command, _ []string) {
	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	keyStr, _ := cmd.Flags().GetString("key")
	seed, _ := cmd.Flags().GetUint64("seed")
	split, _ := cmd.Flags().GetInt("split")
	secondStr, _ := cmd.Flags().GetString("second-key")

	plaintext, err := readInput(in)
	if err != nil {
		log.Fatalf("read plaintext: %v", err)
	}

	rng := rand.New(rand.NewPCG(seed, 0))
	key := keyOrRandom("key", keyStr, rng)
	if split < 0 || split >= len(plaintext) {
		split = len(plaintext)
	}

	ciphertext, err := key.Encode(plaintext[:split])
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	if split < len(plaintext) {
		second := keyOrRandom("second key", secondStr, rng)
		tail, err := second.Encode(plaintext[split:])
		if err != nil {
			log.Fatalf("encode: %v", err)
		}
		ciphertext = append(ciphertext, tail...)
	}
	if err := writeOutput(out, ciphertext); err != nil {
		log.Fatalf("write ciphertext: %v", err)
	}
}

// keyOrRandom parses s, or draws a random key and reports it on stderr.
func keyOrRandom(name, s string, rng *rand.Rand) cipher.Function {
	if s != "" {
		key, err := cipher.New(s)
		if err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		return key
	}
	key := cipher.Random(rng)
	fmt.Fprintf(os.Stderr, "%s: %s\n", name, key)
	return key
}
