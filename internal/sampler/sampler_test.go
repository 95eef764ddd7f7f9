package sampler

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/score"
)

// #region helpers
type fixture struct {
	model      *langmodel.Model
	key        cipher.Function
	plaintext  []byte
	ciphertext []byte
}

func newFixture(t *testing.T, length int) fixture {
	t.Helper()
	model := langmodel.Synthetic(17)
	rng := rand.New(rand.NewPCG(99, 1))
	plain := model.Sample(rng, length)
	key := cipher.Random(rng)
	ct, err := key.Encode(plain)
	require.NoError(t, err)
	return fixture{model: model, key: key, plaintext: plain, ciphertext: ct}
}

func newSampler(t *testing.T, m *langmodel.Model, cfg Config) *Sampler {
	t.Helper()
	s, err := NewSampler(score.NewScorer(&m.Transitions), cfg)
	require.NoError(t, err)
	return s
}

func agreement(a, b []byte) float64 {
	if len(a) == 0 {
		return 0
	}
	same := 0
	for i := range a {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(len(a))
}

type recordingObserver struct {
	mu      sync.Mutex
	samples []Progress
}

func (o *recordingObserver) OnProgress(p Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.samples = append(o.samples, p)
}

// #endregion helpers

// #region accept
func TestAcceptAlwaysTakesImprovements(t *testing.T) {
	for _, delta := range []float64{0, 1e-12, 3, 1e6} {
		assert.True(t, Accept(delta, math.E, 0.999999999), "delta=%v", delta)
	}
}

func TestAcceptUsesLikelihoodRatio(t *testing.T) {
	// e^-1 ~= 0.3679
	assert.True(t, Accept(-1, math.E, 0.30))
	assert.False(t, Accept(-1, math.E, 0.40))
	// Base 2: 2^-1 = 0.5
	assert.True(t, Accept(-1, 2, 0.49))
	assert.False(t, Accept(-1, 2, 0.5))
	assert.False(t, Accept(-1e6, math.E, 0))
}

// #endregion accept

// #region config
func TestNewSamplerRejectsBadConfig(t *testing.T) {
	m := langmodel.Synthetic(1)
	scorer := score.NewScorer(&m.Transitions)
	cases := map[string]func(*Config){
		"restarts":   func(c *Config) { c.Restarts = 0 },
		"stationary": func(c *Config) { c.StationaryLimit = 0 },
		"iterations": func(c *Config) { c.MaxIterations = 0 },
		"base":       func(c *Config) { c.Base = 1 },
		"selection":  func(c *Config) { c.Selection = "whatever" },
		"progress":   func(c *Config) { c.ProgressEvery = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewSampler(scorer, cfg)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestDefaultConfigMatchesReference(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.Restarts)
	assert.Equal(t, 1000, cfg.StationaryLimit)
	assert.Equal(t, 10000, cfg.MaxIterations)
	assert.Equal(t, math.E, cfg.Base)
}

// #endregion config

// #region run
func TestRunRecoversKnownCipher(t *testing.T) {
	f := newFixture(t, 4000)
	cfg := DefaultConfig()
	cfg.Seed = 2024
	cfg.Workers = 4
	s := newSampler(t, f.model, cfg)

	res, err := s.Run(context.Background(), f.ciphertext)
	require.NoError(t, err)
	require.Len(t, res.Restarts, 10)
	require.Len(t, res.Text, len(f.ciphertext))

	bestAgreement := 0.0
	for _, r := range res.Restarts {
		bestAgreement = math.Max(bestAgreement, agreement(r.Text, f.plaintext))
	}
	assert.GreaterOrEqual(t, bestAgreement, 0.95, "no restart recovered the plaintext")

	// The winning restart must hold the highest score.
	for _, r := range res.Restarts {
		assert.LessOrEqual(t, r.Score, res.Score)
	}
}

func TestRunIsReproducibleAcrossWorkerCounts(t *testing.T) {
	f := newFixture(t, 600)
	cfg := DefaultConfig()
	cfg.Restarts = 4
	cfg.MaxIterations = 1500
	cfg.Seed = 7

	seq, err := newSampler(t, f.model, cfg).Run(context.Background(), f.ciphertext)
	require.NoError(t, err)

	cfg.Workers = 3
	par, err := newSampler(t, f.model, cfg).Run(context.Background(), f.ciphertext)
	require.NoError(t, err)

	assert.Equal(t, seq.Text, par.Text)
	assert.Equal(t, seq.Best, par.Best)
	for i := range seq.Restarts {
		assert.Equal(t, seq.Restarts[i].Score, par.Restarts[i].Score)
		assert.Equal(t, seq.Restarts[i].Iterations, par.Restarts[i].Iterations)
	}
}

func TestRunRejectsEmptyAndForeignText(t *testing.T) {
	s := newSampler(t, langmodel.Synthetic(1), DefaultConfig())
	_, err := s.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = s.Run(context.Background(), []byte("ABC"))
	assert.Error(t, err)
}

func TestRunHonorsCancellation(t *testing.T) {
	f := newFixture(t, 200)
	s := newSampler(t, f.model, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Run(ctx, f.ciphertext)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

// #endregion run

// #region restart
func TestSingleSymbolNeverConverges(t *testing.T) {
	// Every key scores 0 on a one-symbol text, so every move is accepted.
	cfg := DefaultConfig()
	cfg.MaxIterations = 50
	cfg.Seed = 3
	s := newSampler(t, langmodel.Synthetic(1), cfg)
	counts, err := score.NewCounts([]byte("q"))
	require.NoError(t, err)

	r, err := s.RunRestart(context.Background(), 0, cfg.Seed, counts, []byte("q"))
	require.NoError(t, err)
	assert.Equal(t, 50, r.Iterations)
	assert.Equal(t, 50, r.Accepted)
	assert.False(t, r.Converged)
	assert.Equal(t, 1.0, r.AcceptanceRate())
	assert.Len(t, r.Text, 1)
}

func TestRestartStopsOnStationaryLimit(t *testing.T) {
	f := newFixture(t, 2000)
	cfg := DefaultConfig()
	cfg.StationaryLimit = 20
	cfg.Seed = 5
	s := newSampler(t, f.model, cfg)
	counts, err := score.NewCounts(f.ciphertext)
	require.NoError(t, err)

	r, err := s.RunRestart(context.Background(), 0, cfg.Seed, counts, f.ciphertext)
	require.NoError(t, err)
	assert.True(t, r.Converged)
	assert.Less(t, r.Iterations, cfg.MaxIterations)
}

func TestSelectionModesShareChain(t *testing.T) {
	f := newFixture(t, 800)
	cfg := DefaultConfig()
	cfg.Restarts = 3
	cfg.MaxIterations = 2000
	cfg.Seed = 11

	best, err := newSampler(t, f.model, cfg).Run(context.Background(), f.ciphertext)
	require.NoError(t, err)

	cfg.Selection = SelectFinal
	final, err := newSampler(t, f.model, cfg).Run(context.Background(), f.ciphertext)
	require.NoError(t, err)

	scorer := score.NewScorer(&f.model.Transitions)
	for i := range best.Restarts {
		b, l := best.Restarts[i], final.Restarts[i]
		// Selection does not touch the random stream.
		assert.Equal(t, b.Final.String(), l.Final.String())
		assert.Equal(t, b.Iterations, l.Iterations)
		assert.GreaterOrEqual(t, b.Score, l.Score)
		assert.InDelta(t, scorer.Score(b.Text, math.E), b.Score, 1e-6*math.Abs(b.Score))
		decoded, err := l.Key.Apply(f.ciphertext)
		require.NoError(t, err)
		assert.Equal(t, decoded, l.Text)
	}
}

func TestSelectFinalKeepsLastStepState(t *testing.T) {
	f := newFixture(t, 400)
	cfg := DefaultConfig()
	cfg.MaxIterations = 40
	cfg.StationaryLimit = 1000
	cfg.Seed = 23
	cfg.Selection = SelectFinal
	s := newSampler(t, f.model, cfg)
	counts, err := score.NewCounts(f.ciphertext)
	require.NoError(t, err)

	r, err := s.RunRestart(context.Background(), 0, cfg.Seed, counts, f.ciphertext)
	require.NoError(t, err)
	require.Equal(t, cfg.MaxIterations, r.Iterations)

	// Walk the same chain by hand.
	scorer := score.NewScorer(&f.model.Transitions)
	rng := restartRNG(cfg.Seed, 0)
	cur := cipher.Random(rng)
	curScore := scorer.ScoreCounts(counts, cur, cfg.Base)
	rejected, lastStart := cur, curScore
	rejections := 0
	for i := 0; i < cfg.MaxIterations; i++ {
		lastStart = curScore
		proposed := cur.Perturb(rng)
		proposedScore := scorer.ScoreCounts(counts, proposed, cfg.Base)
		if Accept(proposedScore-curScore, cfg.Base, rng.Float64()) {
			cur, curScore = proposed, proposedScore
		} else {
			rejected = cur
			rejections++
		}
	}
	require.Positive(t, rejections)

	assert.Equal(t, lastStart, r.Score)
	assert.Equal(t, rejected.String(), r.Key.String())
	assert.Equal(t, cur.String(), r.Final.String())
	assert.Equal(t, curScore, r.FinalScore)
}

func TestObserverReceivesSamples(t *testing.T) {
	f := newFixture(t, 300)
	cfg := DefaultConfig()
	cfg.Restarts = 2
	cfg.MaxIterations = 500
	cfg.StationaryLimit = 500
	cfg.ProgressEvery = 100
	cfg.Seed = 9
	obs := &recordingObserver{}
	s := newSampler(t, f.model, cfg).WithObserver(obs)

	res, err := s.Run(context.Background(), f.ciphertext)
	require.NoError(t, err)

	want := 0
	for _, r := range res.Restarts {
		want += r.Iterations / cfg.ProgressEvery
	}
	require.Len(t, obs.samples, want)
	for _, p := range obs.samples {
		assert.Zero(t, p.Iteration%cfg.ProgressEvery)
		assert.Len(t, p.Preview, 20)
		assert.GreaterOrEqual(t, p.AcceptanceRate, 0.0)
		assert.LessOrEqual(t, p.AcceptanceRate, 1.0)
	}
}

// #endregion restart

// #region reduce
func TestReduceKeepsEarliestOnTie(t *testing.T) {
	results := []RestartResult{
		{Index: 0, Score: -10, Text: []byte("a")},
		{Index: 1, Score: -5, Text: []byte("b")},
		{Index: 2, Score: -5, Text: []byte("c")},
	}
	out := Reduce(results)
	assert.Equal(t, 1, out.Best)
	assert.Equal(t, []byte("b"), out.Text)
	assert.Equal(t, -5.0, out.Score)
}

// #endregion reduce
