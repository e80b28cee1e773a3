// Package model implements the probabilistic models an EDA fits to selected
// individuals and samples new candidates from.
package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/goeda/internal/eda"
)

// ErrNotFitted is returned when sampling from a model that has never been
// fitted or restored.
var ErrNotFitted = errors.New("model must be fitted before sampling")

func kindError(model string, g eda.Genotype, want eda.Kind) error {
	got := "nil"
	if g != nil {
		got = string(g.Kind())
	}
	return &eda.ConfigError{
		Component: "model " + model,
		Reason:    fmt.Sprintf("requires %s genotypes, got %s", want, got),
	}
}

func bitStrings(model string, pop *eda.Population) ([]eda.BitString, error) {
	out := make([]eda.BitString, pop.Len())
	for i := 0; i < pop.Len(); i++ {
		v, ok := pop.At(i).Genotype.(eda.BitString)
		if !ok {
			return nil, kindError(model, pop.At(i).Genotype, eda.KindBitString)
		}
		out[i] = v
	}
	return out, nil
}

// bitFrequencies returns the per-position frequency of ones.
func bitFrequencies(xs []eda.BitString) []float64 {
	freq := make([]float64, len(xs[0]))
	for _, x := range xs {
		for i, bit := range x {
			if bit && i < len(freq) {
				freq[i]++
			}
		}
	}
	for i := range freq {
		freq[i] /= float64(len(xs))
	}
	return freq
}

func binaryEntropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		h += entropyTerm(p) + entropyTerm(1-p)
	}
	return h
}

func entropyTerm(p float64) float64 {
	if p <= 0 {
		return 0
	}
	return -p * math.Log2(p)
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func minMax(v []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}
