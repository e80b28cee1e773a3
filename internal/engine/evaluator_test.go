package engine

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/cwbudde/goeda/internal/eda"
)

// slowProblem returns the first coordinate, sleeping longer for smaller
// values so completion order differs from input order.
type slowProblem struct {
	active  atomic.Int64
	maxSeen atomic.Int64
	failOn  float64
}

func (p *slowProblem) Name() string     { return "slow" }
func (p *slowProblem) Sense() eda.Sense { return eda.Minimize }

func (p *slowProblem) Evaluate(ctx context.Context, g eda.Genotype) (eda.Fitness, error) {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		seen := p.maxSeen.Load()
		if n <= seen || p.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	v := g.(eda.RealVector)[0]
	if v == p.failOn {
		return nil, errors.New("bad candidate")
	}
	select {
	case <-time.After(time.Duration(20-int(v)) * time.Millisecond):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return eda.ScalarFitness(v), nil
}

func candidates(n int) []eda.Genotype {
	gs := make([]eda.Genotype, n)
	for i := range gs {
		gs[i] = eda.RealVector{float64(i)}
	}
	return gs
}

func TestParallelEvaluator_PreservesOrder(t *testing.T) {
	p := &slowProblem{failOn: math.NaN()}
	out, err := NewParallelEvaluator(8).Evaluate(context.Background(), p, candidates(16))
	require.NoError(t, err)
	require.Len(t, out, 16)
	for i, ind := range out {
		assert.Equal(t, float64(i), ind.Value())
		assert.Equal(t, eda.RealVector{float64(i)}, ind.Genotype)
	}
	assert.LessOrEqual(t, p.maxSeen.Load(), int64(8))
	assert.Greater(t, p.maxSeen.Load(), int64(1))
}

func TestParallelEvaluator_FailureDiscardsBatch(t *testing.T) {
	p := &slowProblem{failOn: 5}
	out, err := NewParallelEvaluator(4).Evaluate(context.Background(), p, candidates(12))
	assert.Nil(t, out)

	var evalErr *eda.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, 5, evalErr.Index)
}

func TestParallelEvaluator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewParallelEvaluator(2).Evaluate(ctx, &slowProblem{failOn: math.NaN()}, candidates(4))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParallelEvaluator_NilFitness(t *testing.T) {
	p := problemFunc(func(eda.Genotype) (eda.Fitness, error) { return nil, nil })
	_, err := NewParallelEvaluator(1).Evaluate(context.Background(), p, candidates(1))
	assert.ErrorIs(t, err, errNilFitness)
}

func TestSharedEvaluator_BoundsConcurrencyAcrossRuns(t *testing.T) {
	sem := semaphore.NewWeighted(3)
	p := &slowProblem{failOn: math.NaN()}
	shared := NewSharedEvaluator(sem)

	errs := make(chan error, 2)
	for run := 0; run < 2; run++ {
		go func() {
			out, err := shared.Evaluate(context.Background(), p, candidates(10))
			if err == nil && out[9].Value() != 9 {
				err = errors.New("order lost")
			}
			errs <- err
		}()
	}
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.LessOrEqual(t, p.maxSeen.Load(), int64(3))

	// The semaphore is fully released afterwards.
	assert.True(t, sem.TryAcquire(3))
}

func TestSharedEvaluator_Failure(t *testing.T) {
	sem := semaphore.NewWeighted(2)
	_, err := NewSharedEvaluator(sem).Evaluate(context.Background(), &slowProblem{failOn: 3}, candidates(8))
	var evalErr *eda.EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.True(t, sem.TryAcquire(2))
}

type problemFunc func(eda.Genotype) (eda.Fitness, error)

func (problemFunc) Name() string     { return "func" }
func (problemFunc) Sense() eda.Sense { return eda.Minimize }
func (f problemFunc) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	return f(g)
}

func TestFanout_ForwardsInOrder(t *testing.T) {
	var got []string
	f := NewFanout(PublisherFunc(func(e Event) { got = append(got, "a:"+string(e.Type)) }))
	f.Subscribe(PublisherFunc(func(e Event) { got = append(got, "b:"+string(e.Type)) }))

	f.Publish(Event{Type: EventRunStarted})
	f.Publish(Event{Type: EventRunCompleted})
	Discard.Publish(Event{Type: EventRunFailed})

	assert.Equal(t, []string{"a:run-started", "b:run-started", "a:run-completed", "b:run-completed"}, got)
}

func TestSummarize(t *testing.T) {
	pop := eda.NewPopulation(eda.Maximize)
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9, math.Inf(1)} {
		pop.Add(eda.NewIndividual(eda.RealVector{v}, eda.ScalarFitness(v)))
	}
	s := Summarize(pop)
	assert.True(t, math.IsInf(s.Best, 1))
	assert.Equal(t, 2.0, s.Worst)
	assert.InDelta(t, 5, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7), s.Std, 1e-12)

	one := Summarize(eda.NewPopulation(eda.Minimize, eda.NewIndividual(eda.RealVector{1}, eda.ScalarFitness(3))))
	assert.Equal(t, Stats{Best: 3, Worst: 3, Mean: 3}, one)
	assert.Equal(t, Stats{}, Summarize(nil))
}
