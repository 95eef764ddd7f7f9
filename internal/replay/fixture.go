package replay

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
	"github.com/danielpatrickdp/substitution-breaker/internal/config"
	"github.com/danielpatrickdp/substitution-breaker/internal/eval"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Model           FixtureModel            `json:"model"`
	Config          FixtureConfig           `json:"config"`
	Cases           []FixtureCase           `json:"cases"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureModel names the language model: CSV tables, or a synthetic model
// when no paths are given. Relative paths resolve against the fixture file.
type FixtureModel struct {
	SymbolsPath     string `json:"symbols_path"`
	TransitionsPath string `json:"transitions_path"`
	SyntheticSeed   uint64 `json:"synthetic_seed"`
}

// FixtureCase is one known plaintext to encrypt and decode. Plaintext is
// sampled from the model when empty. Keys are drawn at random when empty.
type FixtureCase struct {
	CaseID     string `json:"case_id"`
	Plaintext  string `json:"plaintext"`
	Length     int    `json:"length"`
	TextSeed   uint64 `json:"text_seed"`
	Key        string `json:"key"`
	SecondKey  string `json:"second_key"`
	Breakpoint int    `json:"breakpoint"` // 0 means a single key
}

// FixtureExpectedResult captures the expected action per case.
type FixtureExpectedResult struct {
	CaseID string `json:"case_id"`
	Action string `json:"action"`
}

// FixtureConfig bundles the sampler and eval configs for a replay run.
type FixtureConfig struct {
	SamplerConfig FixtureSamplerConfig `json:"sampler_config"`
	EvalConfig    FixtureEvalConfig    `json:"eval_config"`
}

// FixtureSamplerConfig mirrors sampler.Config with JSON tags. Zero fields
// keep the defaults.
type FixtureSamplerConfig struct {
	Restarts        int    `json:"restarts"`
	StationaryLimit int    `json:"stationary_limit"`
	MaxIterations   int    `json:"max_iterations"`
	Selection       string `json:"selection"`
	Workers         int    `json:"workers"`
	Seed            uint64 `json:"seed"`
}

// FixtureEvalConfig mirrors eval.EvalConfig with JSON tags.
type FixtureEvalConfig struct {
	MinAccuracy        float64 `json:"min_accuracy"`
	MinSegmentAccuracy float64 `json:"min_segment_accuracy"`
	MaxBreakpointError int     `json:"max_breakpoint_error"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Load builds the language model. baseDir resolves relative table paths.
func (m *FixtureModel) Load(baseDir string) (*langmodel.Model, error) {
	return config.ModelConfig{
		SymbolsPath:     resolve(baseDir, m.SymbolsPath),
		TransitionsPath: resolve(baseDir, m.TransitionsPath),
		SyntheticSeed:   m.SyntheticSeed,
	}.Load()
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ToCase converts a FixtureCase to a domain Case, sampling the plaintext and
// keys it leaves out.
func (fc *FixtureCase) ToCase(model *langmodel.Model) (Case, error) {
	rng := rand.New(rand.NewPCG(fc.TextSeed, 0x5eed))

	c := Case{CaseID: fc.CaseID, Breakpoint: -1}
	if fc.Plaintext != "" {
		c.Plaintext = []byte(fc.Plaintext)
		if err := alphabet.Validate(c.Plaintext); err != nil {
			return Case{}, fmt.Errorf("case %s: %w", fc.CaseID, err)
		}
	} else {
		if fc.Length <= 0 {
			return Case{}, fmt.Errorf("case %s: needs plaintext or a positive length", fc.CaseID)
		}
		c.Plaintext = model.Sample(rng, fc.Length)
	}

	var err error
	if c.Key, err = keyOrRandom(fc.Key, rng); err != nil {
		return Case{}, fmt.Errorf("case %s key: %w", fc.CaseID, err)
	}
	if fc.Breakpoint > 0 {
		if fc.Breakpoint >= len(c.Plaintext) {
			return Case{}, fmt.Errorf("case %s: breakpoint %d outside text of length %d", fc.CaseID, fc.Breakpoint, len(c.Plaintext))
		}
		c.Breakpoint = fc.Breakpoint
		if c.SecondKey, err = keyOrRandom(fc.SecondKey, rng); err != nil {
			return Case{}, fmt.Errorf("case %s second key: %w", fc.CaseID, err)
		}
	}
	return c, nil
}

func keyOrRandom(key string, rng *rand.Rand) (cipher.Function, error) {
	if key == "" {
		return cipher.Random(rng), nil
	}
	return cipher.New(key)
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig() ReplayConfig {
	cfg := DefaultReplayConfig()
	sc := fc.SamplerConfig
	if sc.Restarts > 0 {
		cfg.SamplerConfig.Restarts = sc.Restarts
	}
	if sc.StationaryLimit > 0 {
		cfg.SamplerConfig.StationaryLimit = sc.StationaryLimit
	}
	if sc.MaxIterations > 0 {
		cfg.SamplerConfig.MaxIterations = sc.MaxIterations
	}
	if sc.Selection != "" {
		cfg.SamplerConfig.Selection = sampler.Selection(sc.Selection)
	}
	if sc.Workers > 0 {
		cfg.SamplerConfig.Workers = sc.Workers
	}
	cfg.SamplerConfig.Seed = sc.Seed

	if ec := fc.EvalConfig; ec != (FixtureEvalConfig{}) {
		cfg.EvalConfig = eval.EvalConfig{
			MinAccuracy:        ec.MinAccuracy,
			MinSegmentAccuracy: ec.MinSegmentAccuracy,
			MaxBreakpointError: ec.MaxBreakpointError,
		}
	}
	return cfg
}

// #endregion fixture-loader
