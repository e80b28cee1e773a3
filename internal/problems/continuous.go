package problems

import (
	"context"
	"fmt"
	"math"

	"github.com/cwbudde/goeda/internal/eda"
)

// Sphere is the sum of squares.
type Sphere struct{}

func (Sphere) Name() string     { return "sphere" }
func (Sphere) Sense() eda.Sense { return eda.Minimize }

func (p Sphere) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, err := reals(p.Name(), g)
	if err != nil {
		return nil, err
	}
	return eda.ScalarFitness(sumSquares(v, 0)), nil
}

func sumSquares(v []float64, shift float64) float64 {
	var s float64
	for _, x := range v {
		d := x - shift
		s += d * d
	}
	return s
}

// Rastrigin is the multimodal 10n + Σ(x² - 10cos(2πx)).
type Rastrigin struct{}

func (Rastrigin) Name() string     { return "rastrigin" }
func (Rastrigin) Sense() eda.Sense { return eda.Minimize }

func (p Rastrigin) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, err := reals(p.Name(), g)
	if err != nil {
		return nil, err
	}
	s := 10 * float64(len(v))
	for _, x := range v {
		s += x*x - 10*math.Cos(2*math.Pi*x)
	}
	return eda.ScalarFitness(s), nil
}

// BiSphere has two sphere objectives centred at 0 and at Shift, scalarized
// with fixed weights.
type BiSphere struct {
	Shift   float64
	Weights []float64
}

// NewBiSphere creates the problem; missing weights default to 0.5 each.
func NewBiSphere(shift float64, weights []float64) BiSphere {
	if len(weights) != 2 {
		weights = []float64{0.5, 0.5}
	}
	return BiSphere{Shift: shift, Weights: weights}
}

func (BiSphere) Name() string        { return "bi-sphere" }
func (BiSphere) Sense() eda.Sense    { return eda.Minimize }
func (BiSphere) ObjectiveCount() int { return 2 }

func (p BiSphere) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, err := reals(p.Name(), g)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%s: empty vector", p.Name())
	}
	return eda.NewVectorFitness([]float64{sumSquares(v, 0), sumSquares(v, p.Shift)}, p.Weights), nil
}
