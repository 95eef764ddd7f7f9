package sampler

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
	"github.com/danielpatrickdp/substitution-breaker/internal/score"
)

const (
	previewLen    = 20
	ctxCheckEvery = 256
)

// #region sampler
// Sampler runs Metropolis chains over substitution keys.
type Sampler struct {
	scorer   *score.Scorer
	config   Config
	observer Observer
}

// NewSampler validates config and returns a Sampler scoring with scorer.
func NewSampler(scorer *score.Scorer, config Config) (*Sampler, error) {
	switch {
	case config.Restarts < 1:
		return nil, fmt.Errorf("%w: restarts %d", ErrConfig, config.Restarts)
	case config.StationaryLimit < 1:
		return nil, fmt.Errorf("%w: stationary limit %d", ErrConfig, config.StationaryLimit)
	case config.MaxIterations < 1:
		return nil, fmt.Errorf("%w: max iterations %d", ErrConfig, config.MaxIterations)
	case math.IsNaN(config.Base) || config.Base <= 1:
		return nil, fmt.Errorf("%w: base %v must exceed 1", ErrConfig, config.Base)
	case config.Selection != SelectBestEver && config.Selection != SelectFinal:
		return nil, fmt.Errorf("%w: selection %q", ErrConfig, config.Selection)
	case config.ProgressEvery < 0:
		return nil, fmt.Errorf("%w: progress interval %d", ErrConfig, config.ProgressEvery)
	}
	return &Sampler{scorer: scorer, config: config}, nil
}

// WithObserver returns a copy of s that reports progress samples to o. The
// observer may be called from several goroutines when Workers > 1.
func (s *Sampler) WithObserver(o Observer) *Sampler {
	cp := *s
	cp.observer = o
	return &cp
}

// WithSeed returns a copy of s whose runs start from seed. Zero means a fresh
// seed per run.
func (s *Sampler) WithSeed(seed uint64) *Sampler {
	cp := *s
	cp.config.Seed = seed
	return &cp
}

// Config returns the sampler's settings.
func (s *Sampler) Config() Config {
	return s.config
}

// #endregion sampler

// #region accept
// Accept is the Metropolis rule for a symmetric proposal: accept with
// probability base^min(delta, 0), using u drawn uniformly from [0, 1).
// Moves that do not lower the score are always accepted.
func Accept(delta, base, u float64) bool {
	return u < math.Pow(base, math.Min(delta, 0))
}

// #endregion accept

// #region run
// Run decodes ciphertext with Restarts independent chains and returns the
// best-scoring decoding.
func (s *Sampler) Run(ctx context.Context, ciphertext []byte) (Result, error) {
	if len(ciphertext) == 0 {
		return Result{}, ErrEmptyText
	}
	counts, err := score.NewCounts(ciphertext)
	if err != nil {
		return Result{}, fmt.Errorf("tally ciphertext: %w", err)
	}

	seed := s.config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	results := make([]RestartResult, s.config.Restarts)
	if s.config.Workers <= 1 {
		for i := range results {
			r, err := s.RunRestart(ctx, i, seed, counts, ciphertext)
			if err != nil {
				return Result{}, err
			}
			results[i] = r
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.config.Workers)
		for i := range results {
			g.Go(func() error {
				r, err := s.RunRestart(gctx, i, seed, counts, ciphertext)
				if err != nil {
					return err
				}
				results[i] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
	}

	out := Reduce(results)
	out.Seed = seed
	if len(out.Text) > len(ciphertext) {
		out.Text = out.Text[:len(ciphertext)]
	}
	return out, nil
}

// Reduce folds restart results by maximum score. Ties keep the earliest
// restart.
func Reduce(results []RestartResult) Result {
	out := Result{Score: math.Inf(-1), Best: -1, Restarts: results}
	for i, r := range results {
		if r.Score > out.Score {
			out.Score = r.Score
			out.Best = i
		}
	}
	if out.Best >= 0 {
		w := results[out.Best]
		out.Text = w.Text
		out.Key = w.Key
	}
	return out
}

// #endregion run

// #region restart
// restartRNG derives an independent stream per restart from the run seed.
func restartRNG(seed uint64, index int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(index)+1))
}

// RunRestart runs one chain from a fresh random key until it has gone
// StationaryLimit iterations without an accepted move or has run
// MaxIterations iterations.
func (s *Sampler) RunRestart(ctx context.Context, index int, seed uint64, counts *score.Counts, ciphertext []byte) (RestartResult, error) {
	cfg := s.config
	rng := restartRNG(seed, index)

	cur := cipher.Random(rng)
	curScore := s.scorer.ScoreCounts(counts, cur, cfg.Base)

	best, bestScore := cur, curScore
	rejected, stepScore := cur, curScore

	var stationary, iterations, accepted, windowAccepted int
	for stationary < cfg.StationaryLimit && iterations < cfg.MaxIterations {
		if iterations%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return RestartResult{}, fmt.Errorf("restart %d: %w", index, err)
			}
		}
		iterations++
		stepScore = curScore

		proposed := cur.Perturb(rng)
		proposedScore := s.scorer.ScoreCounts(counts, proposed, cfg.Base)

		if Accept(proposedScore-curScore, cfg.Base, rng.Float64()) {
			cur, curScore = proposed, proposedScore
			stationary = 0
			accepted++
			windowAccepted++
			if curScore > bestScore {
				best, bestScore = cur, curScore
			}
		} else {
			stationary++
			rejected = cur
		}

		if s.observer != nil && cfg.ProgressEvery > 0 && iterations%cfg.ProgressEvery == 0 {
			s.observer.OnProgress(s.progress(index, iterations, cur, curScore, windowAccepted, ciphertext))
			windowAccepted = 0
		}
	}

	res := RestartResult{
		Index:      index,
		Seed:       seed,
		Final:      cur,
		FinalScore: curScore,
		Iterations: iterations,
		Accepted:   accepted,
		Converged:  stationary >= cfg.StationaryLimit,
	}
	switch cfg.Selection {
	case SelectFinal:
		res.Key, res.Score = rejected, stepScore
	default:
		res.Key, res.Score = best, bestScore
	}

	text, err := res.Key.Apply(ciphertext)
	if err != nil {
		return RestartResult{}, fmt.Errorf("restart %d: decode: %w", index, err)
	}
	res.Text = text
	return res, nil
}

func (s *Sampler) progress(index, iteration int, key cipher.Function, keyScore float64, windowAccepted int, ciphertext []byte) Progress {
	prefix := ciphertext
	if len(prefix) > previewLen {
		prefix = prefix[:previewLen]
	}
	preview, _ := key.Apply(prefix)
	return Progress{
		Restart:        index,
		Iteration:      iteration,
		Score:          keyScore,
		AcceptanceRate: float64(windowAccepted) / float64(s.config.ProgressEvery),
		Key:            key.String(),
		Preview:        string(preview),
	}
}

// #endregion restart
