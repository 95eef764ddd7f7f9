package replay

import (
	"context"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/substitution-breaker/internal/cipher"
	"github.com/danielpatrickdp/substitution-breaker/internal/eval"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
)

// helper: exact decimal form for CSV round trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// helper: a quick sampler config so the harness tests stay fast.
func quickConfig() sampler.Config {
	cfg := sampler.DefaultConfig()
	cfg.Restarts = 2
	cfg.StationaryLimit = 200
	cfg.MaxIterations = 1500
	cfg.Seed = 8
	return cfg
}

// helper: a sampled case with an optional key change.
func sampledCase(t *testing.T, m *langmodel.Model, id string, length, bp int) Case {
	t.Helper()
	rng := rand.New(rand.NewPCG(uint64(length), uint64(bp+2)))
	c := Case{
		CaseID:     id,
		Plaintext:  m.Sample(rng, length),
		Key:        cipher.Random(rng),
		SecondKey:  cipher.Random(rng),
		Breakpoint: bp,
	}
	return c
}

func lenient() eval.EvalConfig {
	return eval.EvalConfig{MinAccuracy: 0, MinSegmentAccuracy: 0, MaxBreakpointError: 1 << 30}
}

// 1. Ciphertext switches keys at the breakpoint.
func TestCase_CiphertextSwitchesKeys(t *testing.T) {
	m := langmodel.Synthetic(4)
	c := sampledCase(t, m, "c", 200, 80)

	ct, err := c.Ciphertext()
	require.NoError(t, err)
	require.Len(t, ct, 200)

	head, err := c.Key.Apply(ct[:80])
	require.NoError(t, err)
	tail, err := c.SecondKey.Apply(ct[80:])
	require.NoError(t, err)
	assert.Equal(t, c.Plaintext, append(head, tail...))
}

// 2. Every case is decoded both ways and accuracies are reported.
func TestReplay_ReportsBothModes(t *testing.T) {
	m := langmodel.Synthetic(4)
	orch, err := NewOrchestrator(m, quickConfig())
	require.NoError(t, err)

	cases := []Case{
		sampledCase(t, m, "plain", 400, -1),
		sampledCase(t, m, "split", 400, 150),
	}
	results, err := Replay(context.Background(), orch, cases, lenient())
	require.NoError(t, err)
	require.Len(t, results, 2)

	for i, r := range results {
		assert.Equal(t, cases[i].CaseID, r.CaseID)
		assert.Equal(t, "pass", r.Action, r.Reason)
		assert.Len(t, r.WithBreakpoint.Plaintext, 400)
		assert.Len(t, r.WithoutBreakpoint.Plaintext, 400)
		assert.Equal(t, -1, r.WithoutBreakpoint.Breakpoint)
		assert.GreaterOrEqual(t, r.WithBreakpoint.Accuracy, 0.0)
		assert.LessOrEqual(t, r.WithBreakpoint.Accuracy, 1.0)
		assert.NotEqual(t, r.WithBreakpoint.RunID, r.WithoutBreakpoint.RunID)
		require.NotNil(t, r.EvalResult)
	}
	assert.GreaterOrEqual(t, results[1].WithBreakpoint.Breakpoint, 0)
}

// 3. Strict thresholds turn a weak decode into a failure.
func TestReplay_FailsUnderStrictThresholds(t *testing.T) {
	m := langmodel.Synthetic(4)
	cfg := quickConfig()
	cfg.Restarts = 1
	cfg.MaxIterations = 1
	orch, err := NewOrchestrator(m, cfg)
	require.NoError(t, err)

	results, err := Replay(context.Background(), orch,
		[]Case{sampledCase(t, m, "hopeless", 300, -1)},
		eval.EvalConfig{MinAccuracy: 1.01})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fail", results[0].Action)
	assert.False(t, results[0].EvalResult.Passed)
}

// 4. A bad sampler config surfaces before any decode.
func TestNewOrchestrator_BadConfig(t *testing.T) {
	cfg := quickConfig()
	cfg.Restarts = 0
	_, err := NewOrchestrator(langmodel.Synthetic(1), cfg)
	assert.ErrorIs(t, err, sampler.ErrConfig)
}

// 5. Same seed, same results.
func TestReplay_Deterministic(t *testing.T) {
	m := langmodel.Synthetic(4)
	cases := []Case{sampledCase(t, m, "d", 300, 120)}

	run := func() []ReplayResult {
		orch, err := NewOrchestrator(m, quickConfig())
		require.NoError(t, err)
		results, err := Replay(context.Background(), orch, cases, lenient())
		require.NoError(t, err)
		return results
	}
	a, b := run(), run()
	assert.Equal(t, a[0].WithBreakpoint.Plaintext, b[0].WithBreakpoint.Plaintext)
	assert.Equal(t, a[0].WithoutBreakpoint.Plaintext, b[0].WithoutBreakpoint.Plaintext)
	assert.Equal(t, a[0].WithBreakpoint.Breakpoint, b[0].WithBreakpoint.Breakpoint)
}

// 6. Summarize counts actions and averages accuracies.
func TestReplay_Summarize(t *testing.T) {
	results := []ReplayResult{
		{Action: "pass", WithBreakpoint: Outcome{Accuracy: 1}, WithoutBreakpoint: Outcome{Accuracy: 0.5}},
		{Action: "fail", WithBreakpoint: Outcome{Accuracy: 0.5}, WithoutBreakpoint: Outcome{Accuracy: 0.25}},
		{Action: "pass", WithBreakpoint: Outcome{Accuracy: 0.75}, WithoutBreakpoint: Outcome{Accuracy: 0.75}},
	}
	s := Summarize(results)
	assert.Equal(t, 3, s.TotalCases)
	assert.Equal(t, 2, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 0.75, s.MeanAccuracy, 1e-12)
	assert.InDelta(t, 0.5, s.MeanAccuracyNoBreakpoint, 1e-12)

	assert.Equal(t, ReplaySummary{}, Summarize(nil))
}
