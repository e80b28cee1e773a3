package engine

import (
	"fmt"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/model"
	"github.com/cwbudde/goeda/internal/rng"
)

// Snapshot is everything needed to continue a run between two iterations.
type Snapshot struct {
	State eda.AlgorithmState
	Model eda.ModelState
	RNG   rng.Snapshot
}

// Capture snapshots the algorithm. It must not be called mid-iteration.
func (a *Algorithm) Capture() (Snapshot, error) {
	if a.state == nil {
		return Snapshot{}, fmt.Errorf("%w: capture in phase %s", ErrPhase, a.phase)
	}
	ms, err := model.EncodeState(a.c.Model)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture model state: %w", err)
	}
	rs, err := a.streams.Snapshot()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture rng state: %w", err)
	}
	st := *a.state
	st.Population = a.state.Population.Clone()
	return Snapshot{State: st, Model: ms, RNG: rs}, nil
}

// Restore loads a snapshot into a freshly created algorithm. The best
// individual is taken from the restored population.
func (a *Algorithm) Restore(s Snapshot) error {
	if a.phase != PhaseCreated {
		return fmt.Errorf("%w: restore in phase %s", ErrPhase, a.phase)
	}

	pop := s.State.Population
	if pop == nil || pop.Len() == 0 {
		return &eda.ResumeError{Field: "population", Reason: "is empty"}
	}
	if pop.Sense() != a.c.Problem.Sense() {
		return &eda.ResumeError{Field: "population", Reason: fmt.Sprintf("sense %s does not match problem sense %s", pop.Sense(), a.c.Problem.Sense())}
	}
	if pop.Len() != a.opts.PopulationSize {
		return &eda.ResumeError{Field: "population", Reason: fmt.Sprintf("has %d individuals, configuration expects %d", pop.Len(), a.opts.PopulationSize)}
	}
	for i := 0; i < pop.Len(); i++ {
		if !a.c.Representation.IsValid(pop.At(i).Genotype) {
			return &eda.ResumeError{Field: fmt.Sprintf("population[%d]", i), Reason: "genotype is not valid for representation " + a.c.Representation.Type()}
		}
	}
	if s.State.Iteration < 0 || s.State.Evaluations < 0 {
		return &eda.ResumeError{Field: "counters", Reason: "must be non-negative"}
	}
	if s.RNG.MasterSeed != a.streams.Seed() {
		return &eda.ResumeError{Field: "rng", Reason: fmt.Sprintf("master seed %d does not match configured seed %d", s.RNG.MasterSeed, a.streams.Seed())}
	}
	if err := a.streams.Restore(s.RNG); err != nil {
		return &eda.ResumeError{Field: "rng", Reason: "cannot restore streams", Err: err}
	}
	if err := model.DecodeState(a.c.Model, s.Model); err != nil {
		return &eda.ResumeError{Field: "modelState", Reason: "cannot restore " + a.c.Model.Name(), Err: err}
	}
	if err := model.CheckDimension(a.c.Model, pop.At(0).Genotype); err != nil {
		return &eda.ResumeError{Field: "modelState", Reason: "does not match representation " + a.c.Representation.Type(), Err: err}
	}

	st := s.State
	st.Population = pop.Clone()
	st.Best, st.HasBest = st.Population.Best()
	if st.RunID == "" {
		st.RunID = a.opts.RunID
	}
	if st.AlgorithmID == "" {
		st.AlgorithmID = a.opts.AlgorithmID
	}
	a.state = &st
	a.phase = PhaseInitialized
	if st.Iteration > 0 {
		a.phase = PhaseIterating
	}
	return nil
}
