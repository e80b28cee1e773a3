// Package engine drives the select/fit/sample/evaluate/replace loop of an
// estimation-of-distribution algorithm.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/policy"
	"github.com/cwbudde/goeda/internal/rng"
)

// Named random streams. Each phase draws only from its own stream.
const (
	StreamInit        = "init"
	StreamSelection   = "selection"
	StreamModelFit    = "model-fit"
	StreamModelSample = "model-sample"
	StreamLocalSearch = "local-search"
	StreamNiching     = "niching"
	StreamRestart     = "restart"
)

var errNilFitness = errors.New("problem returned no fitness")

// ErrPhase is returned when an operation is invalid in the current phase.
var ErrPhase = errors.New("invalid engine phase")

// Phase is the lifecycle state of an Algorithm.
type Phase string

const (
	PhaseCreated     Phase = "created"
	PhaseInitialized Phase = "initialized"
	PhaseIterating   Phase = "iterating"
	PhaseStopped     Phase = "stopped"
)

// Components is the resolved component graph of a run. Restart, Niching,
// LocalSearch and Constraints default to no-op policies when nil.
type Components struct {
	Representation eda.Representation
	Problem        eda.Problem
	Model          eda.Model
	Selection      eda.SelectionPolicy
	Replacement    eda.ReplacementPolicy
	Stopping       eda.StoppingCondition
	Constraints    eda.ConstraintHandling
	Restart        eda.RestartPolicy
	Niching        eda.NichingPolicy
	LocalSearch    eda.LocalSearch
}

// Options holds the scalar knobs of a run.
type Options struct {
	RunID          string
	AlgorithmID    string
	PopulationSize int
	SelectionRatio float64
	Elitism        int
}

// Algorithm is one EDA run. It is not safe for concurrent use; only the
// evaluation phase inside Initialize and Iterate runs in parallel.
type Algorithm struct {
	c       Components
	opts    Options
	streams *rng.Manager
	eval    Evaluator
	pub     Publisher
	now     func() time.Time

	phase Phase
	state *eda.AlgorithmState
}

// New validates the component graph and creates an algorithm in the
// created phase. A nil evaluator evaluates in parallel on GOMAXPROCS
// goroutines; a nil publisher discards events.
func New(c Components, opts Options, streams *rng.Manager, eval Evaluator, pub Publisher) (*Algorithm, error) {
	if err := validate(c, opts, streams); err != nil {
		return nil, err
	}
	if c.Constraints == nil {
		c.Constraints = policy.Identity{}
	}
	if c.Restart == nil {
		c.Restart = policy.NoRestart{}
	}
	if c.Niching == nil {
		c.Niching = policy.NoNiching{}
	}
	if c.LocalSearch == nil {
		c.LocalSearch = policy.NoLocalSearch{}
	}
	if eval == nil {
		eval = NewParallelEvaluator(0)
	}
	if pub == nil {
		pub = Discard
	}
	return &Algorithm{
		c:       c,
		opts:    opts,
		streams: streams,
		eval:    eval,
		pub:     pub,
		now:     time.Now,
		phase:   PhaseCreated,
	}, nil
}

func validate(c Components, opts Options, streams *rng.Manager) error {
	missing := func(name string) error {
		return &eda.ConfigError{Component: name, Reason: "is required"}
	}
	switch {
	case c.Representation == nil:
		return missing("representation")
	case c.Problem == nil:
		return missing("problem")
	case c.Model == nil:
		return missing("model")
	case c.Selection == nil:
		return missing("selection")
	case c.Replacement == nil:
		return missing("replacement")
	case c.Stopping == nil:
		return missing("stopping")
	case streams == nil:
		return missing("rng")
	}
	if opts.PopulationSize < 2 {
		return &eda.ConfigError{Component: "populationSize", Reason: fmt.Sprintf("must be >= 2, got %d", opts.PopulationSize)}
	}
	if !(opts.SelectionRatio > 0 && opts.SelectionRatio <= 1) {
		return &eda.ConfigError{Component: "selectionRatio", Reason: fmt.Sprintf("must be in (0, 1], got %g", opts.SelectionRatio)}
	}
	if opts.Elitism < 0 {
		return &eda.ConfigError{Component: "elitism", Reason: fmt.Sprintf("must be >= 0, got %d", opts.Elitism)}
	}
	return nil
}

// Phase returns the lifecycle phase.
func (a *Algorithm) Phase() Phase { return a.phase }

// State returns the live algorithm state. Callers must not mutate it.
func (a *Algorithm) State() *eda.AlgorithmState { return a.state }

// Components returns the resolved component graph.
func (a *Algorithm) Components() Components { return a.c }

// Options returns the run options.
func (a *Algorithm) Options() Options { return a.opts }

// SelectionSize is ceil(ratio·populationSize), at least 2.
func (a *Algorithm) SelectionSize() int {
	n := int(math.Ceil(a.opts.SelectionRatio * float64(a.opts.PopulationSize)))
	return min(max(2, n), a.opts.PopulationSize)
}

// Initialize draws, evaluates and sorts the starting population.
func (a *Algorithm) Initialize(ctx context.Context) error {
	if a.phase != PhaseCreated {
		return fmt.Errorf("%w: initialize in phase %s", ErrPhase, a.phase)
	}

	r := a.streams.Stream(StreamInit)
	gs := make([]eda.Genotype, a.opts.PopulationSize)
	for i := range gs {
		gs[i] = a.c.Constraints.Enforce(a.c.Representation.Random(r), a.c.Representation, a.c.Problem, r)
	}
	if err := checkFinite("initialization", gs); err != nil {
		return err
	}

	inds, err := a.eval.Evaluate(ctx, a.c.Problem, gs)
	if err != nil {
		return err
	}
	pop := eda.NewPopulation(a.c.Problem.Sense(), inds...)
	pop.Sort()
	best, _ := pop.Best()

	a.state = &eda.AlgorithmState{
		RunID:       a.opts.RunID,
		AlgorithmID: a.opts.AlgorithmID,
		Evaluations: int64(len(inds)),
		StartedAt:   a.now().UTC(),
		Population:  pop,
		Best:        best,
		HasBest:     true,
	}
	a.phase = PhaseInitialized
	return nil
}

// Iterate runs one generation. A failed Iterate ends the run: the model and
// the random streams may already have advanced, so the algorithm moves to the
// stopped phase. The state counters, population and best are left unchanged.
func (a *Algorithm) Iterate(ctx context.Context) error {
	if a.phase != PhaseInitialized && a.phase != PhaseIterating {
		return fmt.Errorf("%w: iterate in phase %s", ErrPhase, a.phase)
	}
	if err := a.step(ctx); err != nil {
		a.phase = PhaseStopped
		return err
	}
	a.phase = PhaseIterating
	a.publishIteration()
	return nil
}

func (a *Algorithm) step(ctx context.Context) error {
	s := a.state
	rep, prob := a.c.Representation, a.c.Problem

	selected := a.c.Selection.Select(s.Population, a.SelectionSize(), a.streams.Stream(StreamSelection))
	if err := a.c.Model.Fit(eda.NewPopulation(s.Population.Sense(), selected...), rep, a.streams.Stream(StreamModelFit)); err != nil {
		return fmt.Errorf("fit %s: %w", a.c.Model.Name(), err)
	}

	gs, err := a.c.Model.Sample(a.opts.PopulationSize, rep, prob, a.c.Constraints, a.streams.Stream(StreamModelSample))
	if err != nil {
		return fmt.Errorf("sample %s: %w", a.c.Model.Name(), err)
	}
	if err := checkFinite(a.c.Model.Name(), gs); err != nil {
		return err
	}

	offspring, err := a.eval.Evaluate(ctx, prob, gs)
	if err != nil {
		return err
	}
	evaluations := int64(len(offspring))

	ls := a.streams.Stream(StreamLocalSearch)
	for i, ind := range offspring {
		improved, n, err := a.c.LocalSearch.Improve(ctx, ind, rep, prob, ls)
		if err != nil {
			return &eda.EvaluationError{Index: i, Err: fmt.Errorf("local search %s: %w", a.c.LocalSearch.Name(), err)}
		}
		offspring[i] = improved
		evaluations += int64(n)
	}

	next := a.c.Replacement.Replace(s.Population, offspring, a.opts.Elitism)
	next = a.c.Niching.Apply(next, a.streams.Stream(StreamNiching))
	carryBest(next, s.Best)

	iteration := s.Iteration + 1
	lastImprovement := s.LastImprovement
	best, _ := next.Best()
	if next.Sense().Better(best.Value(), s.Best.Value()) {
		lastImprovement = iteration
	}

	restarts := s.Restarts
	probe := *s
	probe.Iteration, probe.LastImprovement, probe.Population = iteration, lastImprovement, next
	if a.c.Restart.ShouldRestart(&probe) {
		restarted, n, err := a.restart(ctx, &probe)
		if err != nil {
			return err
		}
		next = restarted
		evaluations += n
		restarts++
		lastImprovement = iteration
		best, _ = next.Best()
	}

	s.Population = next
	s.Best = best
	s.Iteration = iteration
	s.Evaluations += evaluations
	s.LastImprovement = lastImprovement
	s.Restarts = restarts
	return nil
}

// carryBest puts prev in place of the worst member when it is strictly
// better than everything in pop, then re-sorts.
func carryBest(pop *eda.Population, prev eda.Individual) {
	if pop.Len() == 0 || prev.Fitness == nil {
		return
	}
	best, _ := pop.Best()
	if !pop.Sense().Better(prev.Value(), best.Value()) {
		return
	}
	pop.Set(pop.WorstIndex(), prev)
	pop.Sort()
}

func (a *Algorithm) restart(ctx context.Context, probe *eda.AlgorithmState) (*eda.Population, int64, error) {
	rep := a.c.Representation
	r := a.streams.Stream(StreamRestart)
	survivors, fresh := a.c.Restart.Restart(probe, rep, r)
	for i, g := range fresh {
		fresh[i] = a.c.Constraints.Enforce(g, rep, a.c.Problem, r)
	}
	if err := checkFinite("restart", fresh); err != nil {
		return nil, 0, err
	}
	inds, err := a.eval.Evaluate(ctx, a.c.Problem, fresh)
	if err != nil {
		return nil, 0, err
	}
	pop := eda.NewPopulation(probe.Population.Sense(), survivors...)
	pop.Add(inds...)
	pop.Sort()
	return pop, int64(len(inds)), nil
}

// ShouldStop consults the stopping condition and moves to the stopped phase
// when it fires.
func (a *Algorithm) ShouldStop() bool {
	if a.phase == PhaseStopped {
		return true
	}
	if a.state == nil {
		return false
	}
	if a.c.Stopping.ShouldStop(a.state) {
		a.phase = PhaseStopped
		return true
	}
	return false
}

// Stop moves the algorithm to the stopped phase.
func (a *Algorithm) Stop() { a.phase = PhaseStopped }

// Stats summarizes the current population.
func (a *Algorithm) Stats() Stats {
	if a.state == nil {
		return Stats{}
	}
	return Summarize(a.state.Population)
}

func (a *Algorithm) publishIteration() {
	st := a.Stats()
	diag := a.c.Model.Diagnostics()
	a.pub.Publish(Event{
		Type:        EventIterationCompleted,
		RunID:       a.state.RunID,
		AlgorithmID: a.state.AlgorithmID,
		Iteration:   a.state.Iteration,
		Evaluations: a.state.Evaluations,
		Best:        a.state.BestValue(),
		Mean:        st.Mean,
		Std:         st.Std,
		Restarts:    a.state.Restarts,
		Diagnostics: diag,
		Timestamp:   a.now().UTC(),
	})
}

// checkFinite rejects genotypes with NaN or infinite components.
func checkFinite(source string, gs []eda.Genotype) error {
	for i, g := range gs {
		for _, v := range eda.NumericValues(g) {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &eda.NumericalError{
					Model:  source,
					Reason: fmt.Sprintf("candidate %d has non-finite component %v", i, v),
				}
			}
		}
	}
	return nil
}
