// Package eda holds the data model shared by every optimization component
// and the contracts those components implement.
package eda

import (
	"context"

	"github.com/cwbudde/goeda/internal/rng"
)

// Problem is the objective being optimized. Evaluate must be safe for
// concurrent use.
type Problem interface {
	Name() string
	Sense() Sense
	Evaluate(ctx context.Context, g Genotype) (Fitness, error)
}

// FeasibilityChecker is implemented by problems with constraints.
type FeasibilityChecker interface {
	Feasible(g Genotype) bool
}

// MultiObjective is implemented by problems returning vector fitness.
type MultiObjective interface {
	ObjectiveCount() int
}

// Representation defines a genotype domain.
type Representation interface {
	// Type is the representation id, also used to tag encoded genotypes.
	Type() string
	Random(r *rng.Stream) Genotype
	IsValid(g Genotype) bool
	// Repair is total and deterministic: it always returns a valid genotype.
	Repair(g Genotype) Genotype
	// Summarize returns a bounded-length description for logs.
	Summarize(g Genotype) string
}

// Model is a fittable distribution over a representation's domain.
type Model interface {
	Name() string
	// Fit updates the model from the selected individuals.
	Fit(selected *Population, rep Representation, r *rng.Stream) error
	// Sample draws count genotypes and passes each through constraint
	// handling.
	Sample(count int, rep Representation, p Problem, ch ConstraintHandling, r *rng.Stream) ([]Genotype, error)
	// Diagnostics returns model metrics for telemetry.
	Diagnostics() map[string]float64
}

// SelectionPolicy picks individuals to fit the model on.
type SelectionPolicy interface {
	Name() string
	Select(pop *Population, count int, r *rng.Stream) []Individual
}

// ReplacementPolicy builds the next population.
type ReplacementPolicy interface {
	Name() string
	Replace(current *Population, offspring []Individual, elitism int) *Population
}

// StoppingCondition decides whether a run halts.
type StoppingCondition interface {
	Name() string
	ShouldStop(state *AlgorithmState) bool
}

// ConstraintHandling turns raw candidates into valid genotypes.
type ConstraintHandling interface {
	Name() string
	Enforce(candidate Genotype, rep Representation, p Problem, r *rng.Stream) Genotype
}

// RestartPolicy may replace a stagnating population with fresh candidates.
type RestartPolicy interface {
	Name() string
	ShouldRestart(state *AlgorithmState) bool
	// Restart returns the survivors and the fresh genotypes to evaluate.
	Restart(state *AlgorithmState, rep Representation, r *rng.Stream) ([]Individual, []Genotype)
}

// NichingPolicy may reshape a population to preserve diversity.
type NichingPolicy interface {
	Name() string
	Apply(pop *Population, r *rng.Stream) *Population
}

// LocalSearch may improve an evaluated individual.
type LocalSearch interface {
	Name() string
	Improve(ctx context.Context, ind Individual, rep Representation, p Problem, r *rng.Stream) (Individual, int, error)
}
