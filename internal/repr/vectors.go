package repr

import (
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// BitString is a fixed-length bit vector domain.
type BitString struct {
	Length int
}

// NewBitString validates the length.
func NewBitString(length int) (*BitString, error) {
	if length <= 0 {
		return nil, paramError("bitstring", "length must be > 0")
	}
	return &BitString{Length: length}, nil
}

func (r *BitString) Type() string { return string(eda.KindBitString) }

func (r *BitString) Random(s *rng.Stream) eda.Genotype {
	g := make(eda.BitString, r.Length)
	for i := range g {
		g[i] = s.Float64() < 0.5
	}
	return g
}

func (r *BitString) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.BitString)
	return ok && len(v) == r.Length
}

func (r *BitString) Repair(g eda.Genotype) eda.Genotype {
	v, _ := g.(eda.BitString)
	if len(v) == r.Length {
		return v
	}
	return eda.BitString(resize(v, r.Length))
}

func (r *BitString) Summarize(g eda.Genotype) string { return summarize(g) }

// RealVector is a box-bounded real vector domain. Repair clamps.
type RealVector struct {
	Length int
	Lower  float64
	Upper  float64
}

// NewRealVector validates the dimension and bounds.
func NewRealVector(length int, lower, upper float64) (*RealVector, error) {
	if length <= 0 {
		return nil, paramError("real-vector", "length must be > 0")
	}
	if err := checkBounds("real-vector", lower, upper); err != nil {
		return nil, err
	}
	return &RealVector{Length: length, Lower: lower, Upper: upper}, nil
}

func (r *RealVector) Type() string { return string(eda.KindRealVector) }

func (r *RealVector) Random(s *rng.Stream) eda.Genotype {
	g := make(eda.RealVector, r.Length)
	span := r.Upper - r.Lower
	for i := range g {
		g[i] = r.Lower + s.Float64()*span
	}
	return g
}

func (r *RealVector) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.RealVector)
	if !ok || len(v) != r.Length {
		return false
	}
	for _, x := range v {
		if !inRange(x, r.Lower, r.Upper) {
			return false
		}
	}
	return true
}

func (r *RealVector) Repair(g eda.Genotype) eda.Genotype {
	v, _ := g.(eda.RealVector)
	out := make(eda.RealVector, r.Length)
	for i := range out {
		x := 0.0
		if i < len(v) {
			x = v[i]
		}
		out[i] = clampFloat(x, r.Lower, r.Upper)
	}
	return out
}

func (r *RealVector) Summarize(g eda.Genotype) string { return summarize(g) }

// Bounds returns per-dimension bounds.
func (r *RealVector) Bounds() ([]float64, []float64) {
	lo := make([]float64, r.Length)
	hi := make([]float64, r.Length)
	for i := range lo {
		lo[i], hi[i] = r.Lower, r.Upper
	}
	return lo, hi
}

// IntVector is a bounded integer vector domain. Repair clamps.
type IntVector struct {
	Length int
	Min    int
	Max    int
}

// NewIntVector validates the length and range.
func NewIntVector(length, min, max int) (*IntVector, error) {
	if length <= 0 {
		return nil, paramError("int-vector", "length must be > 0")
	}
	if max < min {
		return nil, paramError("int-vector", "max must be >= min")
	}
	return &IntVector{Length: length, Min: min, Max: max}, nil
}

func (r *IntVector) Type() string { return string(eda.KindIntVector) }

func (r *IntVector) Random(s *rng.Stream) eda.Genotype {
	g := make(eda.IntVector, r.Length)
	span := r.Max - r.Min + 1
	for i := range g {
		g[i] = r.Min + s.IntN(span)
	}
	return g
}

func (r *IntVector) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.IntVector)
	if !ok || len(v) != r.Length {
		return false
	}
	for _, x := range v {
		if x < r.Min || x > r.Max {
			return false
		}
	}
	return true
}

func (r *IntVector) Repair(g eda.Genotype) eda.Genotype {
	v, _ := g.(eda.IntVector)
	out := make(eda.IntVector, r.Length)
	for i := range out {
		x := 0
		if i < len(v) {
			x = v[i]
		}
		out[i] = clampInt(x, r.Min, r.Max)
	}
	return out
}

func (r *IntVector) Summarize(g eda.Genotype) string { return summarize(g) }

// Permutation is the domain of orderings of 0..Size-1. An invalid ordering
// repairs to the identity permutation.
type Permutation struct {
	Size int
}

// NewPermutation validates the size.
func NewPermutation(size int) (*Permutation, error) {
	if size <= 1 {
		return nil, paramError("permutation-vector", "size must be > 1")
	}
	return &Permutation{Size: size}, nil
}

func (r *Permutation) Type() string { return string(eda.KindPermutation) }

func (r *Permutation) Random(s *rng.Stream) eda.Genotype {
	g := make(eda.Permutation, r.Size)
	for i := range g {
		g[i] = i
	}
	for i := r.Size - 1; i > 0; i-- {
		j := s.IntN(i + 1)
		g[i], g[j] = g[j], g[i]
	}
	return g
}

func (r *Permutation) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.Permutation)
	if !ok || len(v) != r.Size {
		return false
	}
	seen := make([]bool, r.Size)
	for _, x := range v {
		if x < 0 || x >= r.Size || seen[x] {
			return false
		}
		seen[x] = true
	}
	return true
}

func (r *Permutation) Repair(g eda.Genotype) eda.Genotype {
	if r.IsValid(g) {
		return g
	}
	identity := make(eda.Permutation, r.Size)
	for i := range identity {
		identity[i] = i
	}
	return identity
}

func (r *Permutation) Summarize(g eda.Genotype) string { return summarize(g) }

// Categorical is a vector of symbols from a fixed alphabet. Unknown symbols
// repair to the first symbol.
type Categorical struct {
	Length  int
	Symbols []string
	index   map[string]int
}

// NewCategorical validates the length and alphabet.
func NewCategorical(length int, symbols []string) (*Categorical, error) {
	if length <= 0 {
		return nil, paramError("categorical-vector", "length must be > 0")
	}
	if len(symbols) == 0 {
		return nil, paramError("categorical-vector", "symbols must not be empty")
	}
	index := make(map[string]int, len(symbols))
	for i, sym := range symbols {
		if _, dup := index[sym]; !dup {
			index[sym] = i
		}
	}
	return &Categorical{Length: length, Symbols: append([]string(nil), symbols...), index: index}, nil
}

func (r *Categorical) Type() string { return string(eda.KindCategorical) }

func (r *Categorical) Random(s *rng.Stream) eda.Genotype {
	g := make(eda.Categorical, r.Length)
	for i := range g {
		g[i] = r.Symbols[s.IntN(len(r.Symbols))]
	}
	return g
}

func (r *Categorical) IsValid(g eda.Genotype) bool {
	v, ok := g.(eda.Categorical)
	if !ok || len(v) != r.Length {
		return false
	}
	for _, sym := range v {
		if _, known := r.index[sym]; !known {
			return false
		}
	}
	return true
}

func (r *Categorical) Repair(g eda.Genotype) eda.Genotype {
	v, _ := g.(eda.Categorical)
	out := make(eda.Categorical, r.Length)
	for i := range out {
		out[i] = r.Symbols[0]
		if i < len(v) {
			if _, known := r.index[v[i]]; known {
				out[i] = v[i]
			}
		}
	}
	return out
}

func (r *Categorical) Summarize(g eda.Genotype) string { return summarize(g) }
