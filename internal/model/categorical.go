package model

import (
	"fmt"
	"math"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// Domain describes the values a discrete genotype may take. Every position
// is coded as an integer in [0, cardinality).
type Domain struct {
	Kind eda.Kind
	// Cardinalities holds one entry per position of a fixed-length kind.
	Cardinalities []int
	// Offset is added back when decoding int-vector codes.
	Offset int
	// Symbols is the categorical alphabet; a code is a symbol index.
	Symbols []string
	// MinLength, MaxLength and MaxToken describe variable-length sequences.
	MinLength int
	MaxLength int
	MaxToken  int
	// RealDimensions is the size of the real part of mixed genotypes.
	RealDimensions int
}

func (d Domain) variable() bool { return d.Kind == eda.KindTokenSequence }

// positions is the number of coded positions the model keeps a marginal for.
func (d Domain) positions() int {
	if d.variable() {
		return d.MaxLength
	}
	return len(d.Cardinalities)
}

func (d Domain) cardinality(pos int) int {
	if d.variable() {
		return d.MaxToken
	}
	return d.Cardinalities[pos]
}

func (d Domain) validate() error {
	switch d.Kind {
	case eda.KindIntVector, eda.KindCategorical, eda.KindMixedDiscrete, eda.KindMixedRealDiscrete:
		if len(d.Cardinalities) == 0 && d.RealDimensions == 0 {
			return fmt.Errorf("domain %s has no positions", d.Kind)
		}
		for i, c := range d.Cardinalities {
			if c < 1 {
				return fmt.Errorf("domain %s: position %d has cardinality %d", d.Kind, i, c)
			}
		}
	case eda.KindTokenSequence:
		if d.MinLength < 1 || d.MaxLength < d.MinLength || d.MaxToken < 1 {
			return fmt.Errorf("domain %s: invalid length or token bounds", d.Kind)
		}
	default:
		return fmt.Errorf("domain kind %q is not discrete", d.Kind)
	}
	if d.Kind == eda.KindCategorical {
		for _, c := range d.Cardinalities {
			if c != len(d.Symbols) {
				return fmt.Errorf("domain %s: cardinality %d does not match %d symbols", d.Kind, c, len(d.Symbols))
			}
		}
	}
	if d.Kind != eda.KindMixedRealDiscrete && d.RealDimensions != 0 {
		return fmt.Errorf("domain %s has no real part", d.Kind)
	}
	return nil
}

// Categorical is a univariate marginal model over discrete positions: each
// position gets an independent distribution over its values estimated from
// the selection with additive smoothing. Variable-length sequences also get
// a length distribution. The real part of mixed genotypes is modelled with
// independent normals.
type Categorical struct {
	domain    Domain
	smoothing float64
	minSigma  float64
	index     map[string]int

	probs   [][]float64
	lengths []float64
	mean    []float64
	sigma   []float64
}

// NewCategorical creates the model over d. Smoothing is clamped to [0, 1].
func NewCategorical(d Domain, smoothing float64) (*Categorical, error) {
	if err := d.validate(); err != nil {
		return nil, &eda.ConfigError{Component: "model categorical", Reason: err.Error()}
	}
	m := &Categorical{domain: d, smoothing: clamp(smoothing, 0, 1), minSigma: 1e-8}
	if d.Kind == eda.KindCategorical {
		m.index = make(map[string]int, len(d.Symbols))
		for i, s := range d.Symbols {
			if _, dup := m.index[s]; !dup {
				m.index[s] = i
			}
		}
	}
	return m, nil
}

func (m *Categorical) Name() string { return "categorical" }

func (m *Categorical) Fit(selected *eda.Population, _ eda.Representation, _ *rng.Stream) error {
	if selected.Len() == 0 {
		return nil
	}
	d := m.domain
	probs := make([][]float64, d.positions())
	for pos := range probs {
		probs[pos] = make([]float64, d.cardinality(pos))
	}
	var lengths []float64
	if d.variable() {
		lengths = make([]float64, d.MaxLength-d.MinLength+1)
	}
	var reals [][]float64

	for i := 0; i < selected.Len(); i++ {
		g := selected.At(i).Genotype
		codes, rv, err := m.encode(g)
		if err != nil {
			return err
		}
		if lengths != nil {
			if k := len(codes) - d.MinLength; k >= 0 && k < len(lengths) {
				lengths[k]++
			}
		}
		for pos, c := range codes {
			if pos < len(probs) && c >= 0 && c < len(probs[pos]) {
				probs[pos][c]++
			}
		}
		if d.RealDimensions > 0 {
			reals = append(reals, rv)
		}
	}

	for _, row := range probs {
		normalizeCounts(row, m.smoothing)
	}
	if lengths != nil {
		normalizeCounts(lengths, m.smoothing)
	}
	m.probs, m.lengths = probs, lengths
	if d.RealDimensions > 0 {
		m.fitReals(reals)
	}
	return nil
}

func (m *Categorical) fitReals(xs [][]float64) {
	mean := empiricalMean(xs)
	sigma := make([]float64, len(mean))
	for _, x := range xs {
		for d := range sigma {
			diff := x[d] - mean[d]
			sigma[d] += diff * diff
		}
	}
	denom := math.Max(1, float64(len(xs)-1))
	for d := range sigma {
		sigma[d] = math.Max(m.minSigma, finiteOr(math.Sqrt(sigma[d]/denom), m.minSigma))
	}
	m.mean, m.sigma = mean, sigma
}

// encode maps g to per-position codes and, for mixed genotypes, its real
// part. Unknown symbols are coded as -1.
func (m *Categorical) encode(g eda.Genotype) ([]int, []float64, error) {
	if g == nil || g.Kind() != m.domain.Kind {
		return nil, nil, kindError(m.Name(), g, m.domain.Kind)
	}
	switch v := g.(type) {
	case eda.IntVector:
		codes := make([]int, len(v))
		for i, x := range v {
			codes[i] = x - m.domain.Offset
		}
		return codes, nil, nil
	case eda.Categorical:
		codes := make([]int, len(v))
		for i, s := range v {
			c, ok := m.index[s]
			if !ok {
				c = -1
			}
			codes[i] = c
		}
		return codes, nil, nil
	case eda.MixedDiscrete:
		return []int(v), nil, nil
	case eda.TokenSequence:
		return []int(v), nil, nil
	case eda.MixedRealDiscrete:
		if len(v.Real) != m.domain.RealDimensions {
			return nil, nil, &eda.ConfigError{
				Component: "model " + m.Name(),
				Reason:    fmt.Sprintf("real part has %d dimensions, want %d", len(v.Real), m.domain.RealDimensions),
			}
		}
		return v.Discrete, v.Real, nil
	}
	return nil, nil, kindError(m.Name(), g, m.domain.Kind)
}

func (m *Categorical) decode(codes []int, reals []float64) eda.Genotype {
	switch m.domain.Kind {
	case eda.KindIntVector:
		out := make(eda.IntVector, len(codes))
		for i, c := range codes {
			out[i] = c + m.domain.Offset
		}
		return out
	case eda.KindCategorical:
		out := make(eda.Categorical, len(codes))
		for i, c := range codes {
			out[i] = m.domain.Symbols[c]
		}
		return out
	case eda.KindMixedDiscrete:
		return eda.MixedDiscrete(codes)
	case eda.KindTokenSequence:
		return eda.TokenSequence(codes)
	default:
		return eda.MixedRealDiscrete{Real: reals, Discrete: codes}
	}
}

func (m *Categorical) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	if m.probs == nil {
		return nil, ErrNotFitted
	}
	out := make([]eda.Genotype, count)
	for n := range out {
		length := len(m.probs)
		if m.lengths != nil {
			length = m.domain.MinLength + drawIndex(m.lengths, r)
		}
		codes := make([]int, length)
		for i := range codes {
			codes[i] = drawIndex(m.probs[i], r)
		}
		var reals []float64
		if m.domain.RealDimensions > 0 {
			reals = make([]float64, len(m.mean))
			for d := range reals {
				reals[d] = m.mean[d] + m.sigma[d]*r.NormFloat64()
			}
		}
		out[n] = ch.Enforce(m.decode(codes, reals), rep, p, r)
	}
	return out, nil
}

func (m *Categorical) Diagnostics() map[string]float64 {
	if m.probs == nil {
		return map[string]float64{}
	}
	var entropy, peak float64
	for _, row := range m.probs {
		best := 0.0
		for _, p := range row {
			entropy += entropyTerm(p)
			best = math.Max(best, p)
		}
		peak += best
	}
	out := map[string]float64{
		"model_entropy":         entropy,
		"categorical_positions": float64(len(m.probs)),
		"categorical_mean_peak": peak / math.Max(1, float64(len(m.probs))),
	}
	if m.lengths != nil {
		var mean float64
		for i, p := range m.lengths {
			mean += float64(m.domain.MinLength+i) * p
		}
		out["token_model_mean_length"] = mean
	}
	if m.sigma != nil {
		lo, hi := minMax(m.sigma)
		out["gaussian_sigma_min"] = lo
		out["gaussian_sigma_max"] = hi
	}
	return out
}

// Probabilities returns a copy of the per-position distributions.
func (m *Categorical) Probabilities() [][]float64 { return copyRows(m.probs) }

// normalizeCounts turns counts into a distribution after adding smoothing to
// every cell. A row without mass becomes uniform.
func normalizeCounts(row []float64, smoothing float64) {
	var total float64
	for i, v := range row {
		row[i] = math.Max(0, v) + smoothing
		total += row[i]
	}
	if total <= 0 {
		for i := range row {
			row[i] = 1 / float64(len(row))
		}
		return
	}
	for i := range row {
		row[i] /= total
	}
}

// drawIndex samples an index by roulette over probs.
func drawIndex(probs []float64, r *rng.Stream) int {
	threshold := r.Float64()
	var cumulative float64
	for i, p := range probs {
		cumulative += p
		if threshold < cumulative {
			return i
		}
	}
	return len(probs) - 1
}
