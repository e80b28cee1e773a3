package policy

import (
	"math"

	"github.com/cwbudde/goeda/internal/eda"
)

// BudgetOrTarget stops on whichever of the iteration budget, evaluation
// budget or fitness target triggers first. Zero budgets are unlimited.
type BudgetOrTarget struct {
	MaxIterations  int
	MaxEvaluations int64
	Target         float64
	HasTarget      bool
}

func (BudgetOrTarget) Name() string { return "budget-or-target" }

func (b BudgetOrTarget) ShouldStop(state *eda.AlgorithmState) bool {
	if b.MaxIterations > 0 && state.Iteration >= b.MaxIterations {
		return true
	}
	if b.MaxEvaluations > 0 && state.Evaluations >= b.MaxEvaluations {
		return true
	}
	if !b.HasTarget || !state.HasBest {
		return false
	}

	best := state.BestValue()
	if math.IsNaN(best) || math.IsInf(best, 0) {
		return false
	}
	sense := eda.Minimize
	if state.Population != nil {
		sense = state.Population.Sense()
	}
	if sense == eda.Maximize {
		return best >= b.Target
	}
	return best <= b.Target
}

// Stagnation stops when the best has not improved for Patience iterations.
type Stagnation struct {
	Patience int
}

func (Stagnation) Name() string { return "stagnation" }

func (s Stagnation) ShouldStop(state *eda.AlgorithmState) bool {
	if s.Patience <= 0 {
		return false
	}
	return state.Iteration-state.LastImprovement >= s.Patience
}

// Any stops as soon as one of its conditions does.
type Any []eda.StoppingCondition

func (Any) Name() string { return "any" }

func (a Any) ShouldStop(state *eda.AlgorithmState) bool {
	for _, c := range a {
		if c.ShouldStop(state) {
			return true
		}
	}
	return false
}
