package gate

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/danielpatrickdp/substitution-breaker/internal/alphabet"
	"github.com/danielpatrickdp/substitution-breaker/internal/langmodel"
	"github.com/danielpatrickdp/substitution-breaker/internal/sampler"
)

// #region gate
// Gate judges whether a sampler result looks like a real decoding. It never
// changes the result; a flagged decoding is still returned to the caller.
type Gate struct {
	config   GateConfig
	table    *langmodel.TransitionTable
	expected float64 // nats per bigram under the model
}

// NewGate creates a gate against model with the given configuration.
func NewGate(config GateConfig, model *langmodel.Model) *Gate {
	return &Gate{
		config:   config,
		table:    &model.Transitions,
		expected: ExpectedLogLikelihood(model),
	}
}

// Evaluate checks hard vetoes first, then scores soft signals.
func (g *Gate) Evaluate(r sampler.Result) GateDecision {
	var vetoes []VetoSignal
	n := len(r.Text)

	// --- Hard veto pass ---

	// 1. Too little text for the statistics to mean anything
	if n < g.config.MinLength {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoTooShort,
			Reason: fmt.Sprintf("text length %d below minimum %d", n, g.config.MinLength),
		})
	}

	// 2. Decoded text is far less likely than typical model text
	gap := 0.0
	if n >= 2 {
		gap = g.expected - g.observed(r.Text)
	}
	if n >= 2 && gap > g.config.MaxLikelihoodGap {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoLikelihood,
			Reason: fmt.Sprintf("log-likelihood %.4f nats/symbol below model, cap %.4f", gap, g.config.MaxLikelihoodGap),
		})
	}

	// 3. Every restart ran into the iteration cap
	converged := convergedFraction(r.Restarts)
	if g.config.RequireConvergence && len(r.Restarts) > 0 && converged == 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoUnconverged,
			Reason: fmt.Sprintf("none of %d restarts converged", len(r.Restarts)),
		})
	}

	agreement := restartAgreement(r)

	if len(vetoes) > 0 {
		return GateDecision{
			Action:        "flag",
			Reason:        fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:        true,
			VetoSignals:   vetoes,
			LikelihoodGap: gap,
			Agreement:     agreement,
		}
	}

	// --- Soft scoring ---
	softScore := computeSoftScore(agreement, converged, gap, g.config.MaxLikelihoodGap)

	return GateDecision{
		Action:        "accept",
		Reason:        fmt.Sprintf("passed gate: soft_score=%.4f", softScore),
		SoftScore:     softScore,
		LikelihoodGap: gap,
		Agreement:     agreement,
	}
}

// #endregion gate

// #region helpers
// ExpectedLogLikelihood returns the mean natural-log bigram probability of
// text drawn from model, weighting previous symbols by the marginal table.
func ExpectedLogLikelihood(model *langmodel.Model) float64 {
	var h, wsum float64
	for prev := 0; prev < alphabet.Size; prev++ {
		w := model.Symbols.Prob(prev)
		var row, mass float64
		for cur := 0; cur < alphabet.Size; cur++ {
			p := model.Transitions.Prob(cur, prev)
			row += p * model.Transitions.LogProb(cur, prev)
			mass += p
		}
		if mass > 0 {
			h += w * row / mass
		}
		wsum += w
	}
	if wsum == 0 {
		return 0
	}
	return h / wsum
}

// observed returns the mean natural-log bigram probability of text.
func (g *Gate) observed(text []byte) float64 {
	var sum float64
	prev, _ := alphabet.Index(text[0])
	for _, b := range text[1:] {
		cur, _ := alphabet.Index(b)
		sum += g.table.LogProb(cur, prev)
		prev = cur
	}
	return sum / float64(len(text)-1)
}

func convergedFraction(restarts []sampler.RestartResult) float64 {
	if len(restarts) == 0 {
		return 0
	}
	c := 0
	for _, r := range restarts {
		if r.Converged {
			c++
		}
	}
	return float64(c) / float64(len(restarts))
}

// restartAgreement is the mean fraction of positions where each restart's
// text matches the winning text.
func restartAgreement(r sampler.Result) float64 {
	if len(r.Restarts) == 0 || len(r.Text) == 0 {
		return 0
	}
	fracs := make([]float64, len(r.Restarts))
	for i, rr := range r.Restarts {
		if len(rr.Text) != len(r.Text) {
			continue
		}
		same := 0
		for k := range rr.Text {
			if rr.Text[k] == r.Text[k] {
				same++
			}
		}
		fracs[i] = float64(same) / float64(len(r.Text))
	}
	return stat.Mean(fracs, nil)
}

// computeSoftScore produces a 0-1 composite from restart agreement,
// convergence and likelihood closeness. Logged but does not block.
func computeSoftScore(agreement, converged, gap, maxGap float64) float64 {
	score := 0.4*agreement + 0.3*converged

	switch {
	case gap <= 0:
		score += 0.3
	case maxGap > 0 && gap < maxGap:
		score += 0.3 * (1 - gap/maxGap)
	}
	return score
}

// #endregion helpers
