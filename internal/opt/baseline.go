package opt

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/registry"
)

// DefaultBaselineIterations is used when the configuration has no
// iteration budget.
const DefaultBaselineIterations = 100

// BaselineResult is the outcome of a mayfly run on a configured problem.
type BaselineResult struct {
	Problem     string
	Best        eda.RealVector
	Value       float64
	Evaluations int64
	Summary     string
}

type bounded interface {
	Bounds() ([]float64, []float64)
}

// Baseline runs mayfly on the representation and problem of cfg, using the
// configured population size, iteration budget and seed. The representation
// must be a bounded real vector.
func Baseline(ctx context.Context, cfg *config.Config, reg *registry.Registry) (*BaselineResult, error) {
	if reg == nil {
		reg = registry.Default()
	}
	g, err := reg.Build(cfg)
	if err != nil {
		return nil, err
	}
	rep := g.Components.Representation
	b, ok := rep.(bounded)
	if !ok || rep.Type() != string(eda.KindRealVector) {
		return nil, &eda.ConfigError{Component: "representation", Reason: fmt.Sprintf("baseline needs %s, got %s", eda.KindRealVector, rep.Type())}
	}
	lower, upper := b.Bounds()
	prob := g.Components.Problem

	var (
		evals   atomic.Int64
		errOnce sync.Once
		evalErr error
	)
	objective := func(x []float64) float64 {
		evals.Add(1)
		f, err := prob.Evaluate(ctx, eda.RealVector(x))
		if err != nil {
			errOnce.Do(func() { evalErr = &eda.EvaluationError{Index: int(evals.Load() - 1), Err: err} })
			return math.Inf(1)
		}
		v := f.Scalar()
		if math.IsNaN(v) {
			return math.Inf(1)
		}
		if prob.Sense() == eda.Maximize {
			return -v
		}
		return v
	}

	iters := int(cfg.Stopping.MaxIterations)
	if iters <= 0 {
		iters = DefaultBaselineIterations
	}
	m := NewMayfly(iters, cfg.PopulationSize, int64(cfg.Seed))
	best, cost, err := m.Run(ctx, objective, lower, upper)
	if err != nil {
		return nil, err
	}
	if evalErr != nil {
		return nil, evalErr
	}

	value := cost
	if prob.Sense() == eda.Maximize {
		value = -cost
	}
	x := eda.RealVector(best)
	return &BaselineResult{
		Problem:     prob.Name(),
		Best:        x,
		Value:       value,
		Evaluations: evals.Load(),
		Summary:     rep.Summarize(x),
	}, nil
}
