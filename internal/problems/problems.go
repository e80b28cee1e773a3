// Package problems contains a small set of built-in objective functions.
package problems

import (
	"context"
	"fmt"

	"github.com/cwbudde/goeda/internal/eda"
)

func kindMismatch(problem string, g eda.Genotype, want eda.Kind) error {
	got := "nil"
	if g != nil {
		got = string(g.Kind())
	}
	return fmt.Errorf("%s: expected %s genotype, got %s", problem, want, got)
}

func bits(problem string, g eda.Genotype) (eda.BitString, error) {
	v, ok := g.(eda.BitString)
	if !ok {
		return nil, kindMismatch(problem, g, eda.KindBitString)
	}
	return v, nil
}

func reals(problem string, g eda.Genotype) (eda.RealVector, error) {
	v, ok := g.(eda.RealVector)
	if !ok {
		return nil, kindMismatch(problem, g, eda.KindRealVector)
	}
	return v, nil
}

// OneMax counts ones.
type OneMax struct{}

func (OneMax) Name() string     { return "onemax" }
func (OneMax) Sense() eda.Sense { return eda.Maximize }

func (p OneMax) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, err := bits(p.Name(), g)
	if err != nil {
		return nil, err
	}
	return eda.ScalarFitness(v.Ones()), nil
}

// LeadingOnes counts the ones before the first zero.
type LeadingOnes struct{}

func (LeadingOnes) Name() string     { return "leading-ones" }
func (LeadingOnes) Sense() eda.Sense { return eda.Maximize }

func (p LeadingOnes) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, err := bits(p.Name(), g)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, b := range v {
		if !b {
			break
		}
		n++
	}
	return eda.ScalarFitness(n), nil
}

// DeceptiveTrap sums k-bit trap functions over consecutive blocks. A block
// scores k when all ones and k-1-u otherwise, where u is its count of ones.
type DeceptiveTrap struct {
	K int
}

// NewDeceptiveTrap creates the problem; block sizes below 2 become 4.
func NewDeceptiveTrap(k int) DeceptiveTrap {
	if k < 2 {
		k = 4
	}
	return DeceptiveTrap{K: k}
}

func (DeceptiveTrap) Name() string     { return "deceptive-trap" }
func (DeceptiveTrap) Sense() eda.Sense { return eda.Maximize }

func (p DeceptiveTrap) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, err := bits(p.Name(), g)
	if err != nil {
		return nil, err
	}
	if len(v)%p.K != 0 {
		return nil, fmt.Errorf("%s: length %d is not a multiple of block size %d", p.Name(), len(v), p.K)
	}
	var total int
	for start := 0; start < len(v); start += p.K {
		ones := v[start : start+p.K].Ones()
		if ones == p.K {
			total += p.K
		} else {
			total += p.K - 1 - ones
		}
	}
	return eda.ScalarFitness(total), nil
}
