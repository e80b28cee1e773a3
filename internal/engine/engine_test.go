package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/model"
	"github.com/cwbudde/goeda/internal/policy"
	"github.com/cwbudde/goeda/internal/problems"
	"github.com/cwbudde/goeda/internal/repr"
	"github.com/cwbudde/goeda/internal/rng"
)

type setup struct {
	rep      eda.Representation
	problem  eda.Problem
	model    func() eda.Model
	restart  eda.RestartPolicy
	opts     Options
	maxIters int
}

func (s setup) build(t *testing.T, seed uint64, pub Publisher) *Algorithm {
	t.Helper()
	a, err := New(Components{
		Representation: s.rep,
		Problem:        s.problem,
		Model:          s.model(),
		Selection:      policy.Truncation{},
		Replacement:    policy.Elitist{},
		Stopping:       policy.BudgetOrTarget{MaxIterations: s.maxIters},
		Restart:        s.restart,
	}, s.opts, rng.NewManager(seed), NewParallelEvaluator(4), pub)
	require.NoError(t, err)
	return a
}

func runUntilStop(t *testing.T, a *Algorithm) {
	t.Helper()
	ctx := context.Background()
	if a.Phase() == PhaseCreated {
		require.NoError(t, a.Initialize(ctx))
	}
	for !a.ShouldStop() {
		require.NoError(t, a.Iterate(ctx))
	}
}

func runIterations(t *testing.T, a *Algorithm, n int) {
	t.Helper()
	ctx := context.Background()
	if a.Phase() == PhaseCreated {
		require.NoError(t, a.Initialize(ctx))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, a.Iterate(ctx))
	}
}

func umdaOneMax(t *testing.T) setup {
	rep, err := repr.NewBitString(32)
	require.NoError(t, err)
	return setup{
		rep:      rep,
		problem:  problems.OneMax{},
		model:    func() eda.Model { return model.NewBernoulli(0.01) },
		opts:     Options{RunID: "umda", AlgorithmID: "umda", PopulationSize: 120, SelectionRatio: 0.4, Elitism: 1},
		maxIters: 80,
	}
}

func gaussianSphere(t *testing.T) setup {
	rep, err := repr.NewRealVector(8, -5, 5)
	require.NoError(t, err)
	return setup{
		rep:      rep,
		problem:  problems.Sphere{},
		model:    func() eda.Model { return model.NewDiagonalGaussian(1e-8) },
		opts:     Options{RunID: "gauss", AlgorithmID: "gaussian-eda", PopulationSize: 60, SelectionRatio: 0.3, Elitism: 2},
		maxIters: 40,
	}
}

func cmaesSphere(t *testing.T) setup {
	rep, err := repr.NewRealVector(10, -5, 5)
	require.NoError(t, err)
	return setup{
		rep:      rep,
		problem:  problems.Sphere{},
		model:    func() eda.Model { return model.NewCMAES(model.DefaultCMAESConfig()) },
		opts:     Options{RunID: "cma", AlgorithmID: "cma-es", PopulationSize: 64, SelectionRatio: 0.5, Elitism: 0},
		maxIters: 35,
	}
}

func TestUMDA_OneMax(t *testing.T) {
	a := umdaOneMax(t).build(t, 42, nil)
	runUntilStop(t, a)

	s := a.State()
	assert.Equal(t, 80, s.Iteration)
	assert.Equal(t, int64(120*81), s.Evaluations)
	assert.GreaterOrEqual(t, s.BestValue(), 28.0)
	assert.Equal(t, PhaseStopped, a.Phase())
}

// resumeMatchesBaseline runs the setup uninterrupted and again with a
// snapshot/restore at split, then compares the final best fitness.
func resumeMatchesBaseline(t *testing.T, s setup, seed uint64, split int) {
	t.Helper()
	baseline := s.build(t, seed, nil)
	runUntilStop(t, baseline)

	first := s.build(t, seed, nil)
	runIterations(t, first, split)
	snap, err := first.Capture()
	require.NoError(t, err)

	// Model and rng state travel through JSON in checkpoints.
	var rs rng.Snapshot
	data, err := json.Marshal(snap.RNG)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &rs))
	var ms eda.ModelState
	data, err = json.Marshal(snap.Model)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &ms))
	snap.RNG, snap.Model = rs, ms

	resumed := s.build(t, seed, nil)
	require.NoError(t, resumed.Restore(snap))
	assert.Equal(t, split, resumed.State().Iteration)
	runUntilStop(t, resumed)

	assert.Equal(t, baseline.State().Iteration, resumed.State().Iteration)
	assert.Equal(t, baseline.State().Evaluations, resumed.State().Evaluations)
	assert.InDelta(t, baseline.State().BestValue(), resumed.State().BestValue(), 1e-9)
	assert.Equal(t, baseline.State().Population.Values(), resumed.State().Population.Values())
}

func TestResume_DiagonalGaussian(t *testing.T) {
	resumeMatchesBaseline(t, gaussianSphere(t), 7, 20)
}

func TestResume_CMAES(t *testing.T) {
	resumeMatchesBaseline(t, cmaesSphere(t), 11, 20)
}

func TestResume_UMDA(t *testing.T) {
	s := umdaOneMax(t)
	s.maxIters = 30
	resumeMatchesBaseline(t, s, 3, 12)
}

func TestCMAES_ConvergesOnSphere(t *testing.T) {
	a := cmaesSphere(t).build(t, 5, nil)
	runUntilStop(t, a)
	assert.Less(t, a.State().BestValue(), 1.0)
}

func TestDeterminism_IdenticalRuns(t *testing.T) {
	var samplesA, samplesB [][]float64
	record := func(dst *[][]float64) Publisher {
		return PublisherFunc(func(e Event) {
			*dst = append(*dst, []float64{e.Best, e.Mean, e.Std})
		})
	}

	s := gaussianSphere(t)
	a := s.build(t, 99, record(&samplesA))
	b := s.build(t, 99, record(&samplesB))
	runUntilStop(t, a)
	runUntilStop(t, b)

	require.Len(t, samplesA, 40)
	assert.Equal(t, samplesA, samplesB)
	assert.Equal(t, a.State().Population.Values(), b.State().Population.Values())
	for i := 0; i < a.State().Population.Len(); i++ {
		assert.Equal(t, a.State().Population.At(i).Genotype, b.State().Population.At(i).Genotype)
	}

	c := s.build(t, 100, nil)
	runUntilStop(t, c)
	assert.NotEqual(t, a.State().Population.Values(), c.State().Population.Values())
}

func TestBestSoFar_NeverWorsens(t *testing.T) {
	for _, s := range []setup{cmaesSphere(t), umdaOneMax(t)} {
		s.opts.Elitism = 0
		var bests []float64
		a := s.build(t, 8, PublisherFunc(func(e Event) {
			if e.Type == EventIterationCompleted {
				bests = append(bests, e.Best)
			}
		}))
		runUntilStop(t, a)

		sense := s.problem.Sense()
		for i := 1; i < len(bests); i++ {
			assert.False(t, sense.Better(bests[i-1], bests[i]), "best worsened at iteration %d", i+1)
		}
		// The tracked best is a member of the population.
		best, _ := a.State().Population.Best()
		assert.Equal(t, a.State().Best.Value(), best.Value())
	}
}

func TestIterationEvent(t *testing.T) {
	var events []Event
	a := gaussianSphere(t).build(t, 1, PublisherFunc(func(e Event) { events = append(events, e) }))
	runIterations(t, a, 2)

	require.Len(t, events, 2)
	e := events[1]
	assert.Equal(t, EventIterationCompleted, e.Type)
	assert.Equal(t, "gauss", e.RunID)
	assert.Equal(t, 2, e.Iteration)
	assert.Equal(t, int64(180), e.Evaluations)
	assert.Equal(t, a.State().BestValue(), e.Best)
	assert.Contains(t, e.Diagnostics, "gaussian_sigma_max")
	assert.False(t, e.Timestamp.IsZero())
}

func TestSelectionSize(t *testing.T) {
	s := umdaOneMax(t)
	a := s.build(t, 1, nil)
	assert.Equal(t, 48, a.SelectionSize())

	s.opts.SelectionRatio = 0.001
	assert.Equal(t, 2, s.build(t, 1, nil).SelectionSize())
}

type flakyProblem struct {
	eda.Problem
	calls  atomic.Int64
	failAt int64
}

func (p *flakyProblem) Evaluate(ctx context.Context, g eda.Genotype) (eda.Fitness, error) {
	if p.calls.Add(1) == p.failAt {
		return nil, errors.New("simulator crashed")
	}
	return p.Problem.Evaluate(ctx, g)
}

func TestEvaluationError_DiscardsGeneration(t *testing.T) {
	s := gaussianSphere(t)
	flaky := &flakyProblem{Problem: problems.Sphere{}, failAt: int64(s.opts.PopulationSize*3 + 5)}
	s.problem = flaky
	a := s.build(t, 4, nil)
	runIterations(t, a, 2)

	before := a.State().Population.Values()
	err := a.Iterate(context.Background())

	var evalErr *eda.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.ErrorContains(t, err, "simulator crashed")
	assert.Equal(t, 2, a.State().Iteration)
	assert.Equal(t, int64(180), a.State().Evaluations)
	assert.Equal(t, before, a.State().Population.Values())

	assert.Equal(t, PhaseStopped, a.Phase())
	assert.True(t, a.ShouldStop())
	assert.ErrorIs(t, a.Iterate(context.Background()), ErrPhase)
	assert.Equal(t, 2, a.State().Iteration)
}

// nanModel produces NaN coordinates.
type nanModel struct{ model.Random }

func (nanModel) Sample(count int, _ eda.Representation, _ eda.Problem, _ eda.ConstraintHandling, _ *rng.Stream) ([]eda.Genotype, error) {
	out := make([]eda.Genotype, count)
	for i := range out {
		out[i] = eda.RealVector{math.NaN()}
	}
	return out, nil
}

func (nanModel) Name() string { return "nan" }

func TestNumericalError_NonFiniteSample(t *testing.T) {
	rep, err := repr.NewRealVector(1, -1, 1)
	require.NoError(t, err)
	s := setup{
		rep:      rep,
		problem:  problems.Sphere{},
		model:    func() eda.Model { return &nanModel{} },
		opts:     Options{PopulationSize: 4, SelectionRatio: 0.5},
		maxIters: 3,
	}
	a := s.build(t, 1, nil)
	require.NoError(t, a.Initialize(context.Background()))

	err = a.Iterate(context.Background())
	var numErr *eda.NumericalError
	require.ErrorAs(t, err, &numErr)
	assert.Equal(t, "nan", numErr.Model)
}

func TestNew_ConfigErrors(t *testing.T) {
	s := gaussianSphere(t)
	valid := Components{
		Representation: s.rep,
		Problem:        s.problem,
		Model:          s.model(),
		Selection:      policy.Truncation{},
		Replacement:    policy.Elitist{},
		Stopping:       policy.BudgetOrTarget{MaxIterations: 1},
	}

	cases := []struct {
		name  string
		edit  func(c *Components, o *Options)
		field string
	}{
		{"no model", func(c *Components, _ *Options) { c.Model = nil }, "model"},
		{"no representation", func(c *Components, _ *Options) { c.Representation = nil }, "representation"},
		{"no stopping", func(c *Components, _ *Options) { c.Stopping = nil }, "stopping"},
		{"tiny population", func(_ *Components, o *Options) { o.PopulationSize = 1 }, "populationSize"},
		{"ratio zero", func(_ *Components, o *Options) { o.SelectionRatio = 0 }, "selectionRatio"},
		{"ratio above one", func(_ *Components, o *Options) { o.SelectionRatio = 1.5 }, "selectionRatio"},
		{"negative elitism", func(_ *Components, o *Options) { o.Elitism = -1 }, "elitism"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, o := valid, s.opts
			tc.edit(&c, &o)
			_, err := New(c, o, rng.NewManager(1), nil, nil)
			var cfgErr *eda.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Component)
		})
	}

	_, err := New(valid, s.opts, nil, nil, nil)
	assert.Error(t, err)
}

func TestPhases(t *testing.T) {
	a := gaussianSphere(t).build(t, 1, nil)
	assert.Equal(t, PhaseCreated, a.Phase())
	assert.ErrorIs(t, a.Iterate(context.Background()), ErrPhase)
	_, err := a.Capture()
	assert.ErrorIs(t, err, ErrPhase)

	require.NoError(t, a.Initialize(context.Background()))
	assert.Equal(t, PhaseInitialized, a.Phase())
	assert.ErrorIs(t, a.Initialize(context.Background()), ErrPhase)
	assert.Equal(t, int64(60), a.State().Evaluations)
	assert.Equal(t, 0, a.State().Iteration)

	require.NoError(t, a.Iterate(context.Background()))
	assert.Equal(t, PhaseIterating, a.Phase())

	a.Stop()
	assert.True(t, a.ShouldStop())
	assert.ErrorIs(t, a.Iterate(context.Background()), ErrPhase)
}

func TestRestore_RejectsMismatches(t *testing.T) {
	s := gaussianSphere(t)
	src := s.build(t, 5, nil)
	runIterations(t, src, 3)
	snap, err := src.Capture()
	require.NoError(t, err)

	var resumeErr *eda.ResumeError

	err = s.build(t, 6, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "rng", resumeErr.Field)

	bad := snap
	bad.RNG.Version = 2
	err = s.build(t, 5, nil).Restore(bad)
	require.ErrorAs(t, err, &resumeErr)
	assert.ErrorIs(t, err, rng.ErrSnapshotVersion)

	small := s
	small.opts.PopulationSize = 10
	err = small.build(t, 5, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "population", resumeErr.Field)

	other := s
	other.model = func() eda.Model { return model.NewCMAES(model.DefaultCMAESConfig()) }
	err = other.build(t, 5, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "modelState", resumeErr.Field)
	assert.ErrorIs(t, err, model.ErrModelStateMismatch)

	maxed := s
	maxed.problem = problems.OneMax{}
	err = maxed.build(t, 5, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)

	narrow, err := repr.NewRealVector(3, -5, 5)
	require.NoError(t, err)
	wrongRep := s
	wrongRep.rep = narrow
	err = wrongRep.build(t, 5, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "population[0]", resumeErr.Field)

	started := s.build(t, 5, nil)
	require.NoError(t, started.Initialize(context.Background()))
	assert.ErrorIs(t, started.Restore(snap), ErrPhase)
}

func TestRestore_ModelStateMustMatchRepresentation(t *testing.T) {
	large := cmaesSphere(t)
	rep3, err := repr.NewRealVector(3, -5, 5)
	require.NoError(t, err)
	small := large
	small.rep = rep3

	src := small.build(t, 5, nil)
	runIterations(t, src, 3)
	smallSnap, err := src.Capture()
	require.NoError(t, err)

	dst := large.build(t, 5, nil)
	runIterations(t, dst, 3)
	snap, err := dst.Capture()
	require.NoError(t, err)
	snap.Model = smallSnap.Model

	var resumeErr *eda.ResumeError
	err = large.build(t, 5, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "modelState", resumeErr.Field)
	assert.ErrorContains(t, err, "dimension 3")
}

func TestRestore_EmptyEdgeHistogram(t *testing.T) {
	rep, err := repr.NewPermutation(6)
	require.NoError(t, err)
	tsp, err := problems.NewCircleTSP(6, 1)
	require.NoError(t, err)
	s := setup{
		rep:      rep,
		problem:  tsp,
		model:    func() eda.Model { return model.NewEdgeHistogram(0.01) },
		opts:     Options{PopulationSize: 12, SelectionRatio: 0.5, Elitism: 1},
		maxIters: 10,
	}
	src := s.build(t, 3, nil)
	runIterations(t, src, 2)
	snap, err := src.Capture()
	require.NoError(t, err)

	snap.Model.Payload = json.RawMessage(`{"transitions":[]}`)
	var resumeErr *eda.ResumeError
	err = s.build(t, 3, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "modelState", resumeErr.Field)

	snap.Model.Payload = json.RawMessage(`{"transitions":[[0,1,1],[1,0,1],[1,1,0]]}`)
	err = s.build(t, 3, nil).Restore(snap)
	require.ErrorAs(t, err, &resumeErr)
	assert.Equal(t, "modelState", resumeErr.Field)
}

func TestStagnationRestart_Integration(t *testing.T) {
	rep, err := repr.NewBitString(12)
	require.NoError(t, err)
	flat := &constProblem{}
	s := setup{
		rep:      rep,
		problem:  flat,
		model:    func() eda.Model { return model.NewBernoulli(0.1) },
		restart:  policy.StagnationRestart{Patience: 3, Keep: 2},
		opts:     Options{PopulationSize: 10, SelectionRatio: 0.5, Elitism: 1},
		maxIters: 9,
	}
	a := s.build(t, 2, nil)
	runUntilStop(t, a)

	st := a.State()
	assert.Equal(t, 3, st.Restarts)
	assert.Equal(t, 9, st.LastImprovement)
	// Every restart re-evaluates all but the two survivors.
	assert.Equal(t, int64(10+9*10+3*8), st.Evaluations)
	assert.Equal(t, 10, st.Population.Len())
}

type constProblem struct{}

func (constProblem) Name() string     { return "const" }
func (constProblem) Sense() eda.Sense { return eda.Minimize }
func (constProblem) Evaluate(context.Context, eda.Genotype) (eda.Fitness, error) {
	return eda.ScalarFitness(1), nil
}
