package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinMayflyPopulation is the smallest population mayfly accepts.
const MinMayflyPopulation = 20

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, MinMayflyPopulation),
		seed:     seed,
	}
}

// Run executes the Mayfly optimization. Mayfly only supports one scalar
// bound for all dimensions, so the search runs on the unit cube and every
// point is mapped into [lower, upper] before evaluation.
func (m *MayflyAdapter) Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	dim := len(lower)
	if dim == 0 || len(upper) != dim {
		return nil, 0, fmt.Errorf("bounds must be non-empty and of equal length, got %d and %d", len(lower), len(upper))
	}
	for i := range lower {
		if !(lower[i] < upper[i]) {
			return nil, 0, fmt.Errorf("empty bound in dimension %d: [%g, %g]", i, lower[i], upper[i])
		}
	}

	scale := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i, v := range u {
			v = min(max(v, 0), 1)
			x[i] = lower[i] + v*(upper[i]-lower[i])
		}
		return x
	}

	cfg := mayfly.NewDefaultConfig()
	cfg.ObjectiveFunc = func(u []float64) float64 {
		if ctx.Err() != nil {
			return 0
		}
		return eval(scale(u))
	}
	cfg.ProblemSize = dim
	cfg.MaxIterations = m.maxIters
	cfg.NPop = m.popSize
	cfg.LowerBound = 0
	cfg.UpperBound = 1
	cfg.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if result == nil {
		return nil, 0, errors.New("mayfly returned no result")
	}

	best := scale(result.GlobalBest.Position)
	return best, eval(best), nil
}
