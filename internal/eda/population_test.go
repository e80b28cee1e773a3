package eda

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ind(tag int, f float64) Individual {
	return NewIndividual(IntVector{tag}, ScalarFitness(f))
}

func tags(p *Population) []int {
	out := make([]int, p.Len())
	for i := 0; i < p.Len(); i++ {
		out[i] = p.At(i).Genotype.(IntVector)[0]
	}
	return out
}

func TestPopulationSort_MinimizeStableTies(t *testing.T) {
	p := NewPopulation(Minimize, ind(0, 3), ind(1, 1), ind(2, 2), ind(3, 1), ind(4, 2))
	p.Sort()
	assert.Equal(t, []int{1, 3, 2, 4, 0}, tags(p))
}

func TestPopulationSort_Maximize(t *testing.T) {
	p := NewPopulation(Maximize, ind(0, 3), ind(1, 1), ind(2, 5))
	p.Sort()
	assert.Equal(t, []int{2, 0, 1}, tags(p))
}

func TestPopulationBestWorst(t *testing.T) {
	p := NewPopulation(Maximize, ind(0, 2), ind(1, 9), ind(2, 9), ind(3, 1), ind(4, 1))

	best, ok := p.Best()
	require.True(t, ok)
	assert.Equal(t, 1, best.Genotype.(IntVector)[0], "first of equal best wins")

	assert.Equal(t, 4, p.WorstIndex(), "last of equal worst wins")

	_, ok = NewPopulation(Minimize).Best()
	assert.False(t, ok)
	assert.Equal(t, -1, NewPopulation(Minimize).WorstIndex())
}

func TestPopulationBulkOps(t *testing.T) {
	p := NewPopulation(Minimize)
	p.Add(ind(0, 1), ind(1, 2), ind(2, 3))
	p.RemoveAt(1)
	assert.Equal(t, []int{0, 2}, tags(p))

	snapshot := p.Individuals()
	p.Set(0, ind(9, 0))
	assert.Equal(t, 0, snapshot[0].Genotype.(IntVector)[0], "snapshot is a copy")

	p.Truncate(1)
	assert.Equal(t, 1, p.Len())
	p.Clear()
	assert.Equal(t, 0, p.Len())
}

func TestSenseBetter(t *testing.T) {
	assert.True(t, Minimize.Better(1, 2))
	assert.False(t, Minimize.Better(2, 2))
	assert.True(t, Maximize.Better(2, 1))
	assert.True(t, Minimize.Better(1, math.NaN()))
	assert.False(t, Maximize.Better(math.NaN(), 1))
}

func TestParseSense(t *testing.T) {
	s, err := ParseSense("MAX")
	require.NoError(t, err)
	assert.Equal(t, Maximize, s)

	s, err = ParseSense("")
	require.NoError(t, err)
	assert.Equal(t, Minimize, s)

	_, err = ParseSense("sideways")
	assert.Error(t, err)
}

func TestVectorFitness_WeightedSum(t *testing.T) {
	f := NewVectorFitness([]float64{1, 2, 3}, []float64{0.5, 2})
	assert.InDelta(t, 0.5+4+3, f.Scalar(), 1e-12)
	assert.Equal(t, []float64{0.5, 2, 1}, f.Weights())
	assert.Equal(t, []float64{1, 2, 3}, f.Objectives())
}

func TestAlgorithmState_BestValueBeforeEvaluation(t *testing.T) {
	s := &AlgorithmState{Population: NewPopulation(Maximize)}
	assert.True(t, math.IsInf(s.BestValue(), -1))
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &EvaluationError{Index: 3, Err: cause}, cause)
	assert.ErrorIs(t, &ResumeError{Field: "rng", Reason: "bad", Err: cause}, cause)
	assert.ErrorIs(t, &ConfigError{Component: "model", Reason: "missing", Err: cause}, cause)
	assert.Contains(t, (&NumericalError{Model: "cma-es", Reason: "NaN"}).Error(), "cma-es")
}

func TestBitString_OnesAndString(t *testing.T) {
	g := BitString{true, false, true, true}
	assert.Equal(t, 3, g.Ones())
	assert.Equal(t, "1011", g.String())
}
