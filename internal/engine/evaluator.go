package engine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cwbudde/goeda/internal/eda"
)

// Evaluator evaluates a batch of genotypes. The returned individuals are in
// input order; any failure discards the whole batch.
type Evaluator interface {
	Evaluate(ctx context.Context, p eda.Problem, gs []eda.Genotype) ([]eda.Individual, error)
}

// ParallelEvaluator runs evaluations on up to Workers goroutines and waits
// for all of them before returning.
type ParallelEvaluator struct {
	Workers int
}

// NewParallelEvaluator creates an evaluator; workers <= 0 uses GOMAXPROCS.
func NewParallelEvaluator(workers int) *ParallelEvaluator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ParallelEvaluator{Workers: workers}
}

func (e *ParallelEvaluator) Evaluate(ctx context.Context, p eda.Problem, gs []eda.Genotype) ([]eda.Individual, error) {
	out := make([]eda.Individual, len(gs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.Workers))

	for i, genotype := range gs {
		g.Go(func() error {
			return evaluateOne(gctx, p, i, genotype, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SharedEvaluator bounds evaluation parallelism across every run that uses
// it. The semaphore belongs to the caller.
type SharedEvaluator struct {
	sem *semaphore.Weighted
}

// NewSharedEvaluator creates an evaluator over sem.
func NewSharedEvaluator(sem *semaphore.Weighted) *SharedEvaluator {
	return &SharedEvaluator{sem: sem}
}

func (e *SharedEvaluator) Evaluate(ctx context.Context, p eda.Problem, gs []eda.Genotype) ([]eda.Individual, error) {
	out := make([]eda.Individual, len(gs))
	g, gctx := errgroup.WithContext(ctx)

	for i, genotype := range gs {
		if err := e.sem.Acquire(gctx, 1); err != nil {
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, &eda.EvaluationError{Index: i, Err: err}
		}
		g.Go(func() error {
			defer e.sem.Release(1)
			return evaluateOne(gctx, p, i, genotype, out)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func evaluateOne(ctx context.Context, p eda.Problem, i int, g eda.Genotype, out []eda.Individual) error {
	if err := ctx.Err(); err != nil {
		return &eda.EvaluationError{Index: i, Err: err}
	}
	f, err := p.Evaluate(ctx, g)
	if err != nil {
		return &eda.EvaluationError{Index: i, Err: err}
	}
	if f == nil {
		return &eda.EvaluationError{Index: i, Err: errNilFitness}
	}
	out[i] = eda.NewIndividual(g, f)
	return nil
}
