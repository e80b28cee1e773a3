package engine

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/goeda/internal/eda"
)

// Stats summarizes the fitness of a population.
type Stats struct {
	Best  float64
	Worst float64
	Mean  float64
	Std   float64
}

// Summarize computes population statistics over finite fitness values.
// Std is zero for fewer than two finite values.
func Summarize(pop *eda.Population) Stats {
	var s Stats
	if pop == nil || pop.Len() == 0 {
		return s
	}
	if best, ok := pop.Best(); ok {
		s.Best = best.Value()
	}
	if worst, ok := pop.Worst(); ok {
		s.Worst = worst.Value()
	}

	values := make([]float64, 0, pop.Len())
	for _, v := range pop.Values() {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	switch len(values) {
	case 0:
	case 1:
		s.Mean = values[0]
	default:
		s.Mean, s.Std = stat.MeanStdDev(values, nil)
	}
	return s
}
