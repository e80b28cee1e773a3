package repr

import (
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// MixedDiscrete is a vector where position i takes values in
// [0, Cardinalities[i]). Out-of-range values wrap around.
type MixedDiscrete struct {
	Cardinalities []int
}

// NewMixedDiscrete validates the cardinalities.
func NewMixedDiscrete(cardinalities []int) (*MixedDiscrete, error) {
	if len(cardinalities) == 0 {
		return nil, paramError("mixed-discrete-vector", "cardinalities must not be empty")
	}
	return &MixedDiscrete{Cardinalities: normalizeCards(cardinalities)}, nil
}

func normalizeCards(cards []int) []int {
	out := make([]int, len(cards))
	for i, c := range cards {
		out[i] = max(1, c)
	}
	return out
}

func (r *MixedDiscrete) Type() string { return string(eda.KindMixedDiscrete) }

func (r *MixedDiscrete) Random(s *rng.Stream) eda.Genotype {
	g := make(eda.MixedDiscrete, len(r.Cardinalities))
	for i, c := range r.Cardinalities {
		g[i] = s.IntN(c)
	}
	return g
}

func (r *MixedDiscrete) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.MixedDiscrete)
	if !ok || len(v) != len(r.Cardinalities) {
		return false
	}
	for i, x := range v {
		if x < 0 || x >= r.Cardinalities[i] {
			return false
		}
	}
	return true
}

func (r *MixedDiscrete) Repair(g eda.Genotype) eda.Genotype {
	v, _ := g.(eda.MixedDiscrete)
	out := eda.MixedDiscrete(resize(v, len(r.Cardinalities)))
	for i, c := range r.Cardinalities {
		out[i] = floorMod(out[i], c)
	}
	return out
}

func (r *MixedDiscrete) Summarize(g eda.Genotype) string { return summarize(g) }

// MixedRealDiscrete combines a clamped real part with a wrapped discrete
// part.
type MixedRealDiscrete struct {
	RealDimensions int
	Cardinalities  []int
	Lower          float64
	Upper          float64
}

// NewMixedRealDiscrete validates dimensions and bounds.
func NewMixedRealDiscrete(realDims int, cardinalities []int, lower, upper float64) (*MixedRealDiscrete, error) {
	if realDims < 0 {
		return nil, paramError("mixed-real-discrete-vector", "realDimensions must be >= 0")
	}
	if err := checkBounds("mixed-real-discrete-vector", lower, upper); err != nil {
		return nil, err
	}
	if realDims == 0 && len(cardinalities) == 0 {
		return nil, paramError("mixed-real-discrete-vector", "at least one dimension is required")
	}
	return &MixedRealDiscrete{
		RealDimensions: realDims,
		Cardinalities:  normalizeCards(cardinalities),
		Lower:          lower,
		Upper:          upper,
	}, nil
}

func (r *MixedRealDiscrete) Type() string { return string(eda.KindMixedRealDiscrete) }

func (r *MixedRealDiscrete) Random(s *rng.Stream) eda.Genotype {
	reals := make([]float64, r.RealDimensions)
	span := r.Upper - r.Lower
	for i := range reals {
		reals[i] = r.Lower + s.Float64()*span
	}
	discrete := make([]int, len(r.Cardinalities))
	for i, c := range r.Cardinalities {
		discrete[i] = s.IntN(c)
	}
	return eda.MixedRealDiscrete{Real: reals, Discrete: discrete}
}

func (r *MixedRealDiscrete) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.MixedRealDiscrete)
	if !ok || len(v.Real) != r.RealDimensions || len(v.Discrete) != len(r.Cardinalities) {
		return false
	}
	for _, x := range v.Real {
		if !inRange(x, r.Lower, r.Upper) {
			return false
		}
	}
	for i, x := range v.Discrete {
		if x < 0 || x >= r.Cardinalities[i] {
			return false
		}
	}
	return true
}

func (r *MixedRealDiscrete) Repair(g eda.Genotype) eda.Genotype {
	v, _ := g.(eda.MixedRealDiscrete)
	reals := resize(v.Real, r.RealDimensions)
	for i := range reals {
		reals[i] = clampFloat(reals[i], r.Lower, r.Upper)
	}
	discrete := resize(v.Discrete, len(r.Cardinalities))
	for i, c := range r.Cardinalities {
		discrete[i] = floorMod(discrete[i], c)
	}
	return eda.MixedRealDiscrete{Real: reals, Discrete: discrete}
}

func (r *MixedRealDiscrete) Summarize(g eda.Genotype) string { return summarize(g) }

// TokenSequence is a variable-length vector of tokens in [0, MaxToken).
// Repair pads with zeros, truncates and wraps tokens.
type TokenSequence struct {
	MinLength int
	MaxLength int
	MaxToken  int
}

// NewTokenSequence validates the length bounds.
func NewTokenSequence(minLength, maxLength, maxToken int) (*TokenSequence, error) {
	if minLength < 1 || maxLength < minLength {
		return nil, paramError("variable-length-vector", "invalid length bounds")
	}
	return &TokenSequence{MinLength: minLength, MaxLength: maxLength, MaxToken: max(1, maxToken)}, nil
}

func (r *TokenSequence) Type() string { return string(eda.KindTokenSequence) }

func (r *TokenSequence) Random(s *rng.Stream) eda.Genotype {
	n := r.MinLength + s.IntN(r.MaxLength-r.MinLength+1)
	g := make(eda.TokenSequence, n)
	for i := range g {
		g[i] = s.IntN(r.MaxToken)
	}
	return g
}

func (r *TokenSequence) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.TokenSequence)
	if !ok || len(v) < r.MinLength || len(v) > r.MaxLength {
		return false
	}
	for _, x := range v {
		if x < 0 || x >= r.MaxToken {
			return false
		}
	}
	return true
}

func (r *TokenSequence) Repair(g eda.Genotype) eda.Genotype {
	v, _ := g.(eda.TokenSequence)
	n := min(max(len(v), r.MinLength), r.MaxLength)
	out := eda.TokenSequence(resize(v, n))
	for i := range out {
		out[i] = floorMod(out[i], r.MaxToken)
	}
	return out
}

func (r *TokenSequence) Summarize(g eda.Genotype) string { return summarize(g) }
