package problems

import (
	"context"
	"fmt"

	"github.com/cwbudde/goeda/internal/eda"
)

// TargetMatch counts the positions that agree with a target genotype. For
// variable-length sequences every position of length difference costs one.
// The optimum equals the target length.
type TargetMatch struct {
	Target eda.Genotype
}

// NewTargetMatch accepts integer-coded, categorical and token-sequence
// targets.
func NewTargetMatch(target eda.Genotype) (TargetMatch, error) {
	switch v := target.(type) {
	case eda.Categorical:
		if len(v) == 0 {
			return TargetMatch{}, fmt.Errorf("target-match: empty target")
		}
	case eda.IntVector, eda.MixedDiscrete, eda.TokenSequence:
		if len(intCodes(v)) == 0 {
			return TargetMatch{}, fmt.Errorf("target-match: empty target")
		}
	default:
		return TargetMatch{}, fmt.Errorf("target-match: unsupported target %T", target)
	}
	return TargetMatch{Target: target}, nil
}

func (TargetMatch) Name() string     { return "target-match" }
func (TargetMatch) Sense() eda.Sense { return eda.Maximize }

func (p TargetMatch) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	if g == nil || g.Kind() != p.Target.Kind() {
		return nil, kindMismatch(p.Name(), g, p.Target.Kind())
	}
	if v, ok := g.(eda.Categorical); ok {
		return eda.ScalarFitness(matchScore(v, p.Target.(eda.Categorical))), nil
	}
	return eda.ScalarFitness(matchScore(intCodes(g), intCodes(p.Target))), nil
}

func intCodes(g eda.Genotype) []int {
	switch v := g.(type) {
	case eda.IntVector:
		return v
	case eda.MixedDiscrete:
		return v
	case eda.TokenSequence:
		return v
	default:
		return nil
	}
}

func matchScore[T comparable](got, want []T) float64 {
	n := 0
	for i := 0; i < min(len(got), len(want)); i++ {
		if got[i] == want[i] {
			n++
		}
	}
	gap := len(got) - len(want)
	if gap < 0 {
		gap = -gap
	}
	return float64(n - gap)
}

// MixedSphere is Σx² over the real part plus the sum of the discrete part,
// so the optimum 0 sits at the origin with every discrete value 0.
type MixedSphere struct{}

func (MixedSphere) Name() string     { return "mixed-sphere" }
func (MixedSphere) Sense() eda.Sense { return eda.Minimize }

func (p MixedSphere) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, ok := g.(eda.MixedRealDiscrete)
	if !ok {
		return nil, kindMismatch(p.Name(), g, eda.KindMixedRealDiscrete)
	}
	s := sumSquares(v.Real, 0)
	for _, d := range v.Discrete {
		s += float64(d)
	}
	return eda.ScalarFitness(s), nil
}
