package policy

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/repr"
	"github.com/cwbudde/goeda/internal/rng"
)

func ind(tag int, value float64) eda.Individual {
	return eda.NewIndividual(eda.IntVector{tag}, eda.ScalarFitness(value))
}

func tags(inds []eda.Individual) []int {
	out := make([]int, len(inds))
	for i, in := range inds {
		out[i] = in.Genotype.(eda.IntVector)[0]
	}
	return out
}

func TestTruncation_TiesKeepOriginalOrder(t *testing.T) {
	pop := eda.NewPopulation(eda.Minimize,
		ind(0, 3), ind(1, 1), ind(2, 2), ind(3, 1), ind(4, 2), ind(5, 1))

	got := Truncation{}.Select(pop, 4, nil)
	assert.Equal(t, []int{1, 3, 5, 2}, tags(got))

	assert.Len(t, Truncation{}.Select(pop, 50, nil), 6)
	assert.Empty(t, Truncation{}.Select(pop, 0, nil))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, tags(pop.Individuals()), "input must stay untouched")
}

func TestTruncation_Maximize(t *testing.T) {
	pop := eda.NewPopulation(eda.Maximize, ind(0, 3), ind(1, 9), ind(2, 5))
	assert.Equal(t, []int{1, 2}, tags(Truncation{}.Select(pop, 2, nil)))
}

func TestTournament_PicksBetterAndIsDeterministic(t *testing.T) {
	pop := eda.NewPopulation(eda.Minimize)
	for i := 0; i < 20; i++ {
		pop.Add(ind(i, float64(i)))
	}

	a := NewTournament(4).Select(pop, 200, rng.NewManager(3).Stream("selection"))
	b := NewTournament(4).Select(pop, 200, rng.NewManager(3).Stream("selection"))
	require.Len(t, a, 200)
	assert.Equal(t, tags(a), tags(b))

	var sum float64
	for _, in := range a {
		sum += in.Value()
	}
	assert.Less(t, sum/200, 9.5, "tournaments should favour low values")
	assert.Equal(t, 2, NewTournament(0).Size)
}

func TestTournament_SingleMember(t *testing.T) {
	pop := eda.NewPopulation(eda.Maximize, ind(7, 1))
	got := NewTournament(3).Select(pop, 3, rng.NewManager(1).Stream("s"))
	assert.Equal(t, []int{7, 7, 7}, tags(got))
}

func TestElitist_ElitesPrecedeEqualOffspring(t *testing.T) {
	current := eda.NewPopulation(eda.Minimize, ind(0, 5), ind(1, 1), ind(2, 3), ind(3, 9))
	offspring := []eda.Individual{ind(10, 1), ind(11, 4), ind(12, 8), ind(13, 0)}

	next := Elitist{}.Replace(current, offspring, 2)
	assert.Equal(t, []int{13, 1, 10, 2}, tags(next.Individuals()))
	assert.Equal(t, eda.Minimize, next.Sense())
}

func TestElitist_ClampsElitism(t *testing.T) {
	current := eda.NewPopulation(eda.Maximize, ind(0, 5), ind(1, 1))
	offspring := []eda.Individual{ind(10, 0), ind(11, 0)}

	next := Elitist{}.Replace(current, offspring, 99)
	assert.Equal(t, []int{0, 1}, tags(next.Individuals()))

	none := Elitist{}.Replace(current, offspring, -3)
	assert.Equal(t, []int{10, 11}, tags(none.Individuals()))
}

func TestElitist_Floor(t *testing.T) {
	streams := rng.NewManager(17)
	r := streams.Stream("test")
	for trial := 0; trial < 50; trial++ {
		current := eda.NewPopulation(eda.Minimize)
		for i := 0; i < 10; i++ {
			current.Add(ind(i, r.NormFloat64()))
		}
		offspring := make([]eda.Individual, 10)
		for i := range offspring {
			offspring[i] = ind(100+i, r.NormFloat64()+1)
		}
		elitism := r.IntN(12)

		next := Elitist{}.Replace(current, offspring, elitism)
		require.Equal(t, 10, next.Len())
		if elitism == 0 {
			continue
		}
		k := min(elitism, current.Len())
		floor := current.Sorted().At(k - 1).Value()
		best, _ := next.Best()
		assert.LessOrEqual(t, best.Value(), floor)
	}
}

func state(sense eda.Sense, iteration int, evals int64, best float64) *eda.AlgorithmState {
	pop := eda.NewPopulation(sense, ind(0, best))
	return &eda.AlgorithmState{
		Iteration:   iteration,
		Evaluations: evals,
		Population:  pop,
		Best:        pop.At(0),
		HasBest:     true,
	}
}

func TestBudgetOrTarget(t *testing.T) {
	cond := BudgetOrTarget{MaxIterations: 10, MaxEvaluations: 500, Target: 0.5, HasTarget: true}

	assert.False(t, cond.ShouldStop(state(eda.Minimize, 3, 100, 2)))
	assert.True(t, cond.ShouldStop(state(eda.Minimize, 10, 100, 2)))
	assert.True(t, cond.ShouldStop(state(eda.Minimize, 3, 500, 2)))
	assert.True(t, cond.ShouldStop(state(eda.Minimize, 3, 100, 0.5)))
	assert.False(t, cond.ShouldStop(state(eda.Maximize, 3, 100, 0.4)))
	assert.True(t, cond.ShouldStop(state(eda.Maximize, 3, 100, 0.6)))

	unlimited := BudgetOrTarget{}
	assert.False(t, unlimited.ShouldStop(state(eda.Minimize, 1e6, 1e9, -1e9)))
}

func TestBudgetOrTarget_NonFiniteBestNeverHitsTarget(t *testing.T) {
	cond := BudgetOrTarget{MaxIterations: 10, Target: 100, HasTarget: true}
	assert.False(t, cond.ShouldStop(state(eda.Minimize, 1, 1, math.Inf(-1))))
	assert.False(t, cond.ShouldStop(state(eda.Maximize, 1, 1, math.Inf(1))))
	assert.False(t, cond.ShouldStop(state(eda.Minimize, 1, 1, math.NaN())))
	assert.False(t, cond.ShouldStop(&eda.AlgorithmState{Population: eda.NewPopulation(eda.Minimize)}))
}

func TestStagnationStopping(t *testing.T) {
	s := state(eda.Minimize, 12, 0, 1)
	s.LastImprovement = 5
	assert.True(t, Stagnation{Patience: 7}.ShouldStop(s))
	assert.False(t, Stagnation{Patience: 8}.ShouldStop(s))
	assert.False(t, Stagnation{}.ShouldStop(s))

	assert.True(t, Any{BudgetOrTarget{MaxIterations: 100}, Stagnation{Patience: 7}}.ShouldStop(s))
	assert.False(t, Any{}.ShouldStop(s))
}

// countingRep wraps a representation and counts Random calls.
type countingRep struct {
	eda.Representation
	randoms int
}

func (c *countingRep) Random(r *rng.Stream) eda.Genotype {
	c.randoms++
	return c.Representation.Random(r)
}

// strictProblem accepts only the all-ones bit string and counts checks.
type strictProblem struct {
	checks int
}

func (p *strictProblem) Name() string    { return "strict" }
func (p *strictProblem) Sense() eda.Sense { return eda.Maximize }
func (p *strictProblem) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	return eda.ScalarFitness(g.(eda.BitString).Ones()), nil
}
func (p *strictProblem) Feasible(g eda.Genotype) bool {
	p.checks++
	return g.(eda.BitString).Ones() == len(g.(eda.BitString))
}

func TestRejection_RetryBudgetIsBounded(t *testing.T) {
	bits, err := repr.NewBitString(48)
	require.NoError(t, err)
	r := rng.NewManager(5).Stream("model-sample")

	for _, retries := range []int{1, 3, 10} {
		rep := &countingRep{Representation: bits}
		p := &strictProblem{}
		candidate := eda.BitString(make([]bool, 48))

		got := NewRejection(retries).Enforce(candidate, rep, p, r)
		assert.LessOrEqual(t, rep.randoms, retries)
		assert.Equal(t, retries, rep.randoms, "every retry is spent on an infeasible domain")
		assert.Equal(t, retries+1, p.checks)
		assert.Equal(t, candidate, got, "falls back to the repaired candidate")
	}
}

func TestRejection_FeasibleCandidatePassesThrough(t *testing.T) {
	bits, err := repr.NewBitString(3)
	require.NoError(t, err)
	rep := &countingRep{Representation: bits}
	p := &strictProblem{}

	got := NewRejection(5).Enforce(eda.BitString{true, true, true}, rep, p, nil)
	assert.Equal(t, eda.BitString{true, true, true}, got)
	assert.Zero(t, rep.randoms)
	assert.Equal(t, 1, p.checks)
	assert.Equal(t, DefaultRejectionRetries, NewRejection(0).MaxRetries)
}

func TestRejection_WithoutFeasibilityOnlyRepairs(t *testing.T) {
	reals, err := repr.NewRealVector(2, 0, 1)
	require.NoError(t, err)
	got := NewRejection(5).Enforce(eda.RealVector{-4, 7}, reals, nil, nil)
	assert.Equal(t, eda.RealVector{0, 1}, got)
}

func TestIdentity_RepairsInvalid(t *testing.T) {
	perm, err := repr.NewPermutation(4)
	require.NoError(t, err)
	assert.Equal(t, eda.Permutation{0, 1, 2, 3}, Identity{}.Enforce(eda.Permutation{1, 1, 2, 3}, perm, nil, nil))
	assert.Equal(t, eda.Permutation{3, 1, 2, 0}, Identity{}.Enforce(eda.Permutation{3, 1, 2, 0}, perm, nil, nil))
}

func TestStagnationRestart(t *testing.T) {
	bits, err := repr.NewBitString(8)
	require.NoError(t, err)
	pop := eda.NewPopulation(eda.Maximize)
	for i := 0; i < 6; i++ {
		pop.Add(eda.NewIndividual(eda.BitString(make([]bool, 8)), eda.ScalarFitness(float64(i))))
	}
	s := &eda.AlgorithmState{Iteration: 9, LastImprovement: 4, Population: pop}

	policy := StagnationRestart{Patience: 5, Keep: 2}
	require.True(t, policy.ShouldRestart(s))
	assert.False(t, StagnationRestart{Patience: 6}.ShouldRestart(s))

	survivors, fresh := policy.Restart(s, bits, rng.NewManager(1).Stream("restart"))
	require.Len(t, survivors, 2)
	assert.Equal(t, 5.0, survivors[0].Value())
	assert.Equal(t, 4.0, survivors[1].Value())
	assert.Len(t, fresh, 4)
	for _, g := range fresh {
		assert.True(t, bits.IsValid(g))
	}

	survivors, fresh = StagnationRestart{Patience: 1}.Restart(s, bits, rng.NewManager(1).Stream("restart"))
	assert.Len(t, survivors, 1)
	assert.Len(t, fresh, 5)
}

func TestNoOpHooksAreTransparent(t *testing.T) {
	pop := eda.NewPopulation(eda.Minimize, ind(0, 1), ind(1, 2))
	s := &eda.AlgorithmState{Iteration: 1000, Population: pop}

	assert.False(t, NoRestart{}.ShouldRestart(s))
	survivors, fresh := NoRestart{}.Restart(s, nil, nil)
	assert.Nil(t, survivors)
	assert.Nil(t, fresh)

	assert.Same(t, pop, NoNiching{}.Apply(pop, nil))

	out, evals, err := NoLocalSearch{}.Improve(context.Background(), pop.At(1), nil, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, evals)
	assert.Equal(t, pop.At(1), out)
}
