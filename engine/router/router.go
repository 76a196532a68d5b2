// Package router implements the temperature-softmax workflow selector: given
// the workflows an intent can route to, ranked by their handled-intent
// score, it samples one candidate with probability proportional to
// exp(-rank/T).
package router

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/relayforge/relayforge/engine/catalog"
	"github.com/relayforge/relayforge/engine/core"
	"github.com/relayforge/relayforge/engine/workflow"
)

// Router selects one enabled workflow to run for a detected intent.
type Router struct {
	Catalog catalog.Catalog
}

// New builds a Router over cat.
func New(cat catalog.Catalog) *Router {
	return &Router{Catalog: cat}
}

// Route fetches the enabled workflows handling intentID and samples one via
// temperature-softmax over their score-descending rank. temperature == 0
// always selects rank 0 (the highest-scored workflow); temperature < 0 is
// an error; as temperature grows the distribution approaches uniform.
func (r *Router) Route(
	ctx context.Context,
	intentID core.ID,
	temperature float64,
	rng *rand.Rand,
) (*workflow.Metamodel, error) {
	if temperature < 0 {
		return nil, fmt.Errorf("router: temperature must be >= 0, got %g", temperature)
	}
	candidates, err := r.Catalog.WorkflowsForIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, core.NewError(
			fmt.Errorf("router: no enabled workflow handles intent %s", intentID),
			core.CodeNoWorkflowForIntent,
			map[string]any{"intent": intentID.String()},
		)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scoreFor(candidates[i], intentID) > scoreFor(candidates[j], intentID)
	})
	if temperature == 0 {
		return candidates[0], nil
	}
	weights := make([]float64, len(candidates))
	var total float64
	for i := range candidates {
		weights[i] = math.Exp(-float64(i) / temperature)
		total += weights[i]
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(0, 0))
	}
	draw := rng.Float64() * total
	var cumulative float64
	for i, w := range weights {
		cumulative += w
		if draw < cumulative {
			return candidates[i], nil
		}
	}
	return candidates[len(candidates)-1], nil
}

// Probabilities returns the softmax-over-negative-rank distribution for n
// candidates at temperature, summing to 1 within floating-point tolerance.
// Exposed for the sampler's deterministic tests.
func Probabilities(n int, temperature float64) []float64 {
	if n == 0 {
		return nil
	}
	if temperature == 0 {
		out := make([]float64, n)
		out[0] = 1
		return out
	}
	weights := make([]float64, n)
	var total float64
	for i := range weights {
		weights[i] = math.Exp(-float64(i) / temperature)
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

func scoreFor(m *workflow.Metamodel, intentID core.ID) float64 {
	for _, h := range m.HandledIntents {
		if h.IntentID == intentID.String() {
			return h.Score
		}
	}
	return 0
}
