package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/substitution-breaker/internal/gate"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
)

// ErrUnknownModel is returned by ModelFor for a name that is not configured.
var ErrUnknownModel = errors.New("unknown model")

// #region types
type Config struct {
	DB      string                 `yaml:"db"`
	Addr    string                 `yaml:"addr"`
	Model   ModelConfig            `yaml:"model"`
	Models  map[string]ModelConfig `yaml:"models"`
	Sampler SamplerConfig          `yaml:"sampler"`
	Service ServiceConfig          `yaml:"service"`
	Gate    GateConfig             `yaml:"gate"`
}

// ModelConfig locates a language model. With no paths a synthetic model is
// generated from SyntheticSeed.
type ModelConfig struct {
	SymbolsPath     string `yaml:"symbols"`
	TransitionsPath string `yaml:"transitions"`
	SyntheticSeed   uint64 `yaml:"synthetic_seed"`
}

type SamplerConfig struct {
	Restarts        int     `yaml:"restarts"`
	StationaryLimit int     `yaml:"stationary_limit"`
	MaxIterations   int     `yaml:"max_iterations"`
	Base            float64 `yaml:"base"`
	Selection       string  `yaml:"selection"`
	Workers         int     `yaml:"workers"`
	Seed            uint64  `yaml:"seed"`
	ProgressEvery   int     `yaml:"progress_every"`
}

type ServiceConfig struct {
	ModelCacheSize int           `yaml:"model_cache_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type GateConfig struct {
	Enabled            bool    `yaml:"enabled"`
	MinLength          int     `yaml:"min_length"`
	MaxLikelihoodGap   float64 `yaml:"max_likelihood_gap"`
	RequireConvergence bool    `yaml:"require_convergence"`
}

// #endregion types

// #region defaults
func DefaultConfig() *Config {
	def := sampler.DefaultConfig()
	gd := gate.DefaultGateConfig()
	return &Config{
		DB:   "decoder.db",
		Addr: "localhost:50061",
		Model: ModelConfig{
			SyntheticSeed: 1,
		},
		Sampler: SamplerConfig{
			Restarts:        def.Restarts,
			StationaryLimit: def.StationaryLimit,
			MaxIterations:   def.MaxIterations,
			Base:            def.Base,
			Selection:       string(def.Selection),
			Workers:         def.Workers,
			ProgressEvery:   0,
		},
		Service: ServiceConfig{
			ModelCacheSize: 8,
			RequestTimeout: 2 * time.Minute,
		},
		Gate: GateConfig{
			Enabled:            true,
			MinLength:          gd.MinLength,
			MaxLikelihoodGap:   gd.MaxLikelihoodGap,
			RequireConvergence: gd.RequireConvergence,
		},
	}
}

// #endregion defaults

// #region load
// Load returns the defaults overlaid with the YAML file at path and then
// with DECODER_* environment variables. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	applyEnvironment(cfg)
	return cfg, nil
}

// LoadEnv loads KEY=value pairs from the given .env files into the process
// environment. Variables already set win. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env %s: %w", p, err)
		}
	}
	return nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv("DECODER_DB"); v != "" {
		cfg.DB = v
	}
	if v := os.Getenv("DECODER_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DECODER_SYMBOLS"); v != "" {
		cfg.Model.SymbolsPath = v
	}
	if v := os.Getenv("DECODER_TRANSITIONS"); v != "" {
		cfg.Model.TransitionsPath = v
	}
	if v := os.Getenv("DECODER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sampler.Workers = n
		}
	}
	if v := os.Getenv("DECODER_RESTARTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sampler.Restarts = n
		}
	}
	if v := os.Getenv("DECODER_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Sampler.Seed = n
		}
	}
	if v := os.Getenv("DECODER_SELECTION"); v != "" {
		cfg.Sampler.Selection = strings.ToLower(v)
	}
}

// #endregion load

// #region accessors
// SamplerConfig converts the sampler section. A zero base means natural log.
func (c *Config) SamplerConfig() sampler.Config {
	s := c.Sampler
	base := s.Base
	if base == 0 {
		base = math.E
	}
	return sampler.Config{
		Restarts:        s.Restarts,
		StationaryLimit: s.StationaryLimit,
		MaxIterations:   s.MaxIterations,
		Base:            base,
		Selection:       sampler.Selection(s.Selection),
		Workers:         s.Workers,
		Seed:            s.Seed,
		ProgressEvery:   s.ProgressEvery,
	}
}

// GateConfig converts the gate section. The second result is false when the
// gate is disabled.
func (c *Config) GateConfig() (gate.GateConfig, bool) {
	return gate.GateConfig{
		MinLength:          c.Gate.MinLength,
		MaxLikelihoodGap:   c.Gate.MaxLikelihoodGap,
		RequireConvergence: c.Gate.RequireConvergence,
	}, c.Gate.Enabled
}

// ModelFor returns the named model. The empty name and "default" select
// the top-level model section.
func (c *Config) ModelFor(name string) (ModelConfig, error) {
	if name == "" || name == "default" {
		return c.Model, nil
	}
	m, ok := c.Models[name]
	if !ok {
		return ModelConfig{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// Load reads the model's tables, or generates the synthetic model.
func (m ModelConfig) Load() (*langmodel.Model, error) {
	if m.SymbolsPath == "" && m.TransitionsPath == "" {
		return langmodel.Synthetic(m.SyntheticSeed), nil
	}
	if m.SymbolsPath == "" || m.TransitionsPath == "" {
		return nil, fmt.Errorf("model needs both symbol and transition tables")
	}
	return langmodel.Load(m.SymbolsPath, m.TransitionsPath)
}

// #endregion accessors
