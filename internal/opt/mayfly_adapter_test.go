package opt

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42)

	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}

	best, cost, err := optimizer.Run(context.Background(), sphere, lower, upper)
	require.NoError(t, err)
	require.Len(t, best, 3)

	assert.Less(t, cost, 0.1)
	for i, v := range best {
		assert.Lessf(t, math.Abs(v), 1.0, "parameter %d", i)
	}
}

func TestMayflyAdapterPerDimensionBounds(t *testing.T) {
	// shifted optimum inside an asymmetric box
	target := []float64{2, -30}
	f := func(x []float64) float64 {
		return (x[0]-target[0])*(x[0]-target[0]) + (x[1]-target[1])*(x[1]-target[1])
	}
	lower := []float64{0, -40}
	upper := []float64{4, -20}

	best, _, err := NewMayfly(100, 30, 7).Run(context.Background(), f, lower, upper)
	require.NoError(t, err)
	for i := range best {
		assert.GreaterOrEqual(t, best[i], lower[i])
		assert.LessOrEqual(t, best[i], upper[i])
		assert.InDelta(t, target[i], best[i], 0.5)
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	_, cost1, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper)
	require.NoError(t, err)
	_, cost2, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper)
	require.NoError(t, err)

	assert.Equal(t, cost1, cost2)
}

func TestMayflyAdapterInvalidBounds(t *testing.T) {
	m := NewMayfly(10, 20, 1)
	_, _, err := m.Run(context.Background(), sphere, []float64{0}, []float64{0, 1})
	assert.Error(t, err)
	_, _, err = m.Run(context.Background(), sphere, []float64{1}, []float64{1})
	assert.Error(t, err)
	_, _, err = m.Run(context.Background(), sphere, nil, nil)
	assert.Error(t, err)
}

func TestMayflyAdapterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewMayfly(10, 20, 1).Run(ctx, sphere, []float64{-1}, []float64{1})
	assert.ErrorIs(t, err, context.Canceled)
}

func baselineConfig(problem string) *config.Config {
	cfg := config.Default()
	cfg.Algorithm = "gaussian-eda"
	cfg.Seed = 5
	cfg.PopulationSize = 30
	cfg.Representation = config.Component{Type: "real-vector", Params: config.Params{"length": 4, "lower": -5.0, "upper": 5.0}}
	cfg.Problem = config.Component{Type: problem}
	cfg.Stopping = config.Stopping{MaxIterations: 80}
	return cfg
}

func TestBaseline_Sphere(t *testing.T) {
	res, err := Baseline(context.Background(), baselineConfig("sphere"), nil)
	require.NoError(t, err)

	assert.Equal(t, "sphere", res.Problem)
	assert.Len(t, res.Best, 4)
	assert.Less(t, res.Value, 0.5)
	assert.Positive(t, res.Evaluations)
	assert.NotEmpty(t, res.Summary)
}

func TestBaseline_Deterministic(t *testing.T) {
	a, err := Baseline(context.Background(), baselineConfig("rastrigin"), nil)
	require.NoError(t, err)
	b, err := Baseline(context.Background(), baselineConfig("rastrigin"), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Value, b.Value)
	assert.Equal(t, a.Evaluations, b.Evaluations)
}

func TestBaseline_RejectsNonRealRepresentation(t *testing.T) {
	cfg := baselineConfig("onemax")
	cfg.Algorithm = "umda"
	cfg.Representation = config.Component{Type: "bitstring", Params: config.Params{"length": 8}}

	_, err := Baseline(context.Background(), cfg, nil)
	var ce *eda.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "representation", ce.Component)
}
