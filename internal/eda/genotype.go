package eda

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags a genotype payload.
type Kind string

const (
	KindBitString         Kind = "bitstring"
	KindRealVector        Kind = "real-vector"
	KindIntVector         Kind = "int-vector"
	KindPermutation       Kind = "permutation-vector"
	KindCategorical       Kind = "categorical-vector"
	KindMixedDiscrete     Kind = "mixed-discrete-vector"
	KindMixedRealDiscrete Kind = "mixed-real-discrete-vector"
	KindTokenSequence     Kind = "variable-length-vector"
)

// Genotype is a closed sum type over the supported encodings. Values are
// treated as immutable: representations and models build new slices rather
// than writing into existing ones.
type Genotype interface {
	Kind() Kind
	String() string
	genotype()
}

// BitString is a fixed-length bit vector.
type BitString []bool

// RealVector is a fixed-length vector of reals.
type RealVector []float64

// IntVector is a fixed-length vector of bounded integers.
type IntVector []int

// Permutation is an ordering of 0..n-1.
type Permutation []int

// Categorical is a vector of symbols drawn from a fixed alphabet.
type Categorical []string

// MixedDiscrete is a vector of integers each with its own cardinality.
type MixedDiscrete []int

// MixedRealDiscrete has a bounded real part and a cardinal discrete part.
type MixedRealDiscrete struct {
	Real     []float64
	Discrete []int
}

// TokenSequence is a variable-length vector of integer tokens.
type TokenSequence []int

func (BitString) Kind() Kind         { return KindBitString }
func (RealVector) Kind() Kind        { return KindRealVector }
func (IntVector) Kind() Kind         { return KindIntVector }
func (Permutation) Kind() Kind       { return KindPermutation }
func (Categorical) Kind() Kind       { return KindCategorical }
func (MixedDiscrete) Kind() Kind     { return KindMixedDiscrete }
func (MixedRealDiscrete) Kind() Kind { return KindMixedRealDiscrete }
func (TokenSequence) Kind() Kind     { return KindTokenSequence }

func (BitString) genotype()         {}
func (RealVector) genotype()        {}
func (IntVector) genotype()         {}
func (Permutation) genotype()       {}
func (Categorical) genotype()       {}
func (MixedDiscrete) genotype()     {}
func (MixedRealDiscrete) genotype() {}
func (TokenSequence) genotype()     {}

func (g BitString) String() string {
	var b strings.Builder
	b.Grow(len(g))
	for _, bit := range g {
		if bit {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Ones counts the set bits.
func (g BitString) Ones() int {
	n := 0
	for _, bit := range g {
		if bit {
			n++
		}
	}
	return n
}

func (g RealVector) String() string        { return formatFloats(g) }
func (g IntVector) String() string         { return formatInts(g) }
func (g Permutation) String() string       { return formatInts(g) }
func (g MixedDiscrete) String() string     { return formatInts(g) }
func (g TokenSequence) String() string     { return formatInts(g) }
func (g Categorical) String() string       { return "[" + strings.Join(g, ", ") + "]" }
func (g MixedRealDiscrete) String() string { return fmt.Sprintf("%s|%s", formatFloats(g.Real), formatInts(g.Discrete)) }

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatInts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// NumericValues returns the real-valued components of g, or nil when g has
// none. It is used for finiteness checks.
func NumericValues(g Genotype) []float64 {
	switch v := g.(type) {
	case RealVector:
		return v
	case MixedRealDiscrete:
		return v.Real
	default:
		return nil
	}
}
