package registry

import (
	"fmt"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/policy"
)

// ModelNone disables the model; only algorithms that do not require one
// accept it.
const ModelNone = "none"

// Graph is a resolved configuration.
type Graph struct {
	Algorithm  AlgorithmSpec
	Components engine.Components
	Options    engine.Options
}

func configError(component string, err error) error {
	return &eda.ConfigError{Component: component, Reason: "cannot build", Err: err}
}

// Build resolves every section of cfg. All failures are *eda.ConfigError
// and happen before anything is evaluated.
func (r *Registry) Build(cfg *config.Config) (*Graph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alg, err := r.Algorithm(cfg.Algorithm)
	if err != nil {
		return nil, configError("algorithm", err)
	}

	rep, err := build[eda.Representation](r, KindRepresentation, cfg.Representation, Env{Seed: cfg.Seed, Elitism: cfg.Elitism})
	if err != nil {
		return nil, err
	}
	if !accepts(alg.Representations, rep.Type()) {
		return nil, &eda.ConfigError{Component: "representation", Reason: fmt.Sprintf("algorithm %s does not support %s", alg.ID, rep.Type())}
	}
	env := Env{Representation: rep, Seed: cfg.Seed, Elitism: cfg.Elitism}

	probSpec, err := lookup[ProblemSpec](r, KindProblem, cfg.Problem.Type)
	if err != nil {
		return nil, configError("problem", err)
	}
	if !accepts(probSpec.Representations, rep.Type()) {
		return nil, &eda.ConfigError{Component: "problem", Reason: fmt.Sprintf("%s cannot evaluate %s genotypes", cfg.Problem.Type, rep.Type())}
	}
	prob, err := probSpec.New(cfg.Problem.Params, env)
	if err != nil {
		return nil, configError("problem", err)
	}

	m, err := r.buildModel(cfg, alg, env)
	if err != nil {
		return nil, err
	}

	c := engine.Components{Representation: rep, Problem: prob, Model: m}
	if c.Selection, err = build[eda.SelectionPolicy](r, KindSelection, cfg.Selection, env); err != nil {
		return nil, err
	}
	if c.Replacement, err = build[eda.ReplacementPolicy](r, KindReplacement, cfg.Replacement, env); err != nil {
		return nil, err
	}
	if c.Constraints, err = build[eda.ConstraintHandling](r, KindConstraints, cfg.Constraints, env); err != nil {
		return nil, err
	}
	if c.Restart, err = build[eda.RestartPolicy](r, KindRestart, cfg.Restart, env); err != nil {
		return nil, err
	}
	if c.Niching, err = build[eda.NichingPolicy](r, KindNiching, cfg.Niching, env); err != nil {
		return nil, err
	}
	if c.LocalSearch, err = build[eda.LocalSearch](r, KindLocalSearch, cfg.LocalSearch, env); err != nil {
		return nil, err
	}
	c.Stopping = Stopping(cfg.Stopping)

	return &Graph{
		Algorithm:  alg,
		Components: c,
		Options: engine.Options{
			RunID:          cfg.RunID,
			AlgorithmID:    alg.ID,
			PopulationSize: cfg.PopulationSize,
			SelectionRatio: cfg.SelectionRatio,
			Elitism:        cfg.Elitism,
		},
	}, nil
}

func build[T any](r *Registry, kind Kind, section config.Component, env Env) (T, error) {
	var zero T
	f, err := lookup[Constructor[T]](r, kind, section.Type)
	if err != nil {
		return zero, configError(string(kind), err)
	}
	v, err := f(section.Params, env)
	if err != nil {
		return zero, configError(string(kind), err)
	}
	return v, nil
}

func (r *Registry) buildModel(cfg *config.Config, alg AlgorithmSpec, env Env) (eda.Model, error) {
	section := config.Component{Type: alg.DefaultModel}
	if cfg.Model != nil {
		section = *cfg.Model
	}
	if section.Type == "" || section.Type == ModelNone {
		if alg.RequiresModel {
			return nil, &eda.ConfigError{Component: "model", Reason: fmt.Sprintf("algorithm %s requires a model", alg.ID)}
		}
		section = config.Component{Type: "random"}
	}

	spec, err := lookup[ModelSpec](r, KindModel, section.Type)
	if err != nil {
		return nil, configError("model", err)
	}
	if !accepts(spec.Representations, env.Representation.Type()) {
		return nil, &eda.ConfigError{Component: "model", Reason: fmt.Sprintf("%s cannot model %s genotypes", section.Type, env.Representation.Type())}
	}
	m, err := spec.New(section.Params, env)
	if err != nil {
		return nil, configError("model", err)
	}
	return m, nil
}

// Stopping turns the stopping section into a condition: budget and target
// always, plus stagnation when a patience is set.
func Stopping(s config.Stopping) eda.StoppingCondition {
	budget := policy.BudgetOrTarget{MaxIterations: int(s.MaxIterations), MaxEvaluations: s.MaxEvaluations}
	if s.Target != nil {
		budget.Target, budget.HasTarget = *s.Target, true
	}
	if s.Patience <= 0 {
		return budget
	}
	return policy.Any{budget, policy.Stagnation{Patience: s.Patience}}
}
