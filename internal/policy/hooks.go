package policy

import (
	"context"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// NoRestart never restarts.
type NoRestart struct{}

func (NoRestart) Name() string { return "none" }

func (NoRestart) ShouldRestart(*eda.AlgorithmState) bool { return false }

func (NoRestart) Restart(*eda.AlgorithmState, eda.Representation, *rng.Stream) ([]eda.Individual, []eda.Genotype) {
	return nil, nil
}

// StagnationRestart re-draws the population when the best has not improved
// for Patience iterations. The top Keep individuals (at least one) survive.
type StagnationRestart struct {
	Patience int
	Keep     int
}

func (StagnationRestart) Name() string { return "stagnation" }

func (s StagnationRestart) ShouldRestart(state *eda.AlgorithmState) bool {
	if s.Patience <= 0 || state.Population == nil || state.Population.Len() == 0 {
		return false
	}
	return state.Iteration-state.LastImprovement >= s.Patience
}

func (s StagnationRestart) Restart(state *eda.AlgorithmState, rep eda.Representation, r *rng.Stream) ([]eda.Individual, []eda.Genotype) {
	sorted := state.Population.Sorted()
	keep := min(max(1, s.Keep), sorted.Len())
	sorted.Truncate(keep)

	fresh := make([]eda.Genotype, state.Population.Len()-keep)
	for i := range fresh {
		fresh[i] = rep.Random(r)
	}
	return sorted.Individuals(), fresh
}

// NoNiching returns the population unchanged.
type NoNiching struct{}

func (NoNiching) Name() string { return "none" }

func (NoNiching) Apply(pop *eda.Population, _ *rng.Stream) *eda.Population { return pop }

// NoLocalSearch returns the individual unchanged.
type NoLocalSearch struct{}

func (NoLocalSearch) Name() string { return "none" }

func (NoLocalSearch) Improve(_ context.Context, ind eda.Individual, _ eda.Representation, _ eda.Problem, _ *rng.Stream) (eda.Individual, int, error) {
	return ind, 0, nil
}
