package eda

import (
	"fmt"
	"math"
	"strings"
)

// Sense is the direction of optimization.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// ParseSense accepts "min"/"minimize"/"max"/"maximize".
func ParseSense(v string) (Sense, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "min", "minimize", "":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	}
	return Minimize, fmt.Errorf("unknown objective sense %q", v)
}

// Better reports whether a is strictly better than b.
func (s Sense) Better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	if s == Maximize {
		return a > b
	}
	return a < b
}

// Worst returns the worst possible value for the sense.
func (s Sense) Worst() float64 {
	if s == Maximize {
		return math.Inf(-1)
	}
	return math.Inf(1)
}

// Fitness is the result of evaluating a genotype.
type Fitness interface {
	// Scalar is the value used for ranking.
	Scalar() float64
	// Objectives returns the objective vector; a scalar fitness has one.
	Objectives() []float64
}

// ScalarFitness is a single objective value.
type ScalarFitness float64

func (f ScalarFitness) Scalar() float64       { return float64(f) }
func (f ScalarFitness) Objectives() []float64 { return []float64{float64(f)} }

// VectorFitness holds several objectives scalarized with fixed weights.
type VectorFitness struct {
	values  []float64
	weights []float64
	scalar  float64
}

// NewVectorFitness builds a vector fitness. Missing weights default to 1.
func NewVectorFitness(values, weights []float64) VectorFitness {
	v := append([]float64(nil), values...)
	w := make([]float64, len(values))
	for i := range w {
		w[i] = 1
		if i < len(weights) {
			w[i] = weights[i]
		}
	}
	var sum float64
	for i := range v {
		sum += v[i] * w[i]
	}
	return VectorFitness{values: v, weights: w, scalar: sum}
}

func (f VectorFitness) Scalar() float64 { return f.scalar }

func (f VectorFitness) Objectives() []float64 { return append([]float64(nil), f.values...) }

// Weights returns the scalarization weights.
func (f VectorFitness) Weights() []float64 { return append([]float64(nil), f.weights...) }
