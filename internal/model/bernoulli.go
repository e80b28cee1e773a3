package model

import (
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// Bernoulli is the UMDA model over bit strings: independent per-bit
// probabilities estimated from the selection.
type Bernoulli struct {
	smoothing float64
	probs     []float64
}

// NewBernoulli creates a UMDA model. Smoothing s maps the frequency f to
// s + (1-2s)·f and is clamped to [0, 0.49].
func NewBernoulli(smoothing float64) *Bernoulli {
	return &Bernoulli{smoothing: clamp(smoothing, 0, 0.49)}
}

func (m *Bernoulli) Name() string { return "umda-bernoulli" }

func (m *Bernoulli) Fit(selected *eda.Population, _ eda.Representation, _ *rng.Stream) error {
	if selected.Len() == 0 {
		return nil
	}
	xs, err := bitStrings(m.Name(), selected)
	if err != nil {
		return err
	}
	freq := bitFrequencies(xs)
	for i, f := range freq {
		freq[i] = m.smoothing + (1-2*m.smoothing)*f
	}
	m.probs = freq
	return nil
}

func (m *Bernoulli) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	if m.probs == nil {
		return nil, ErrNotFitted
	}
	return sampleBits(m.probs, count, rep, p, ch, r), nil
}

func sampleBits(probs []float64, count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) []eda.Genotype {
	out := make([]eda.Genotype, count)
	for n := range out {
		g := make(eda.BitString, len(probs))
		for i, prob := range probs {
			g[i] = r.Float64() < prob
		}
		out[n] = ch.Enforce(g, rep, p, r)
	}
	return out
}

func (m *Bernoulli) Diagnostics() map[string]float64 {
	if m.probs == nil {
		return map[string]float64{}
	}
	return map[string]float64{
		"model_entropy":          binaryEntropy(m.probs),
		"model_mean_probability": meanOf(m.probs),
	}
}

// Probabilities returns a copy of the per-bit probabilities.
func (m *Bernoulli) Probabilities() []float64 {
	return append([]float64(nil), m.probs...)
}

// PBIL blends the selection frequencies into a running probability vector.
type PBIL struct {
	learningRate float64
	probs        []float64
}

// NewPBIL creates a PBIL model; the learning rate is clamped to [0.01, 1].
func NewPBIL(learningRate float64) *PBIL {
	return &PBIL{learningRate: clamp(learningRate, 0.01, 1)}
}

func (m *PBIL) Name() string { return "pbil-frequency" }

func (m *PBIL) Fit(selected *eda.Population, _ eda.Representation, _ *rng.Stream) error {
	if selected.Len() == 0 {
		return nil
	}
	xs, err := bitStrings(m.Name(), selected)
	if err != nil {
		return err
	}
	freq := bitFrequencies(xs)
	if len(m.probs) != len(freq) {
		m.probs = make([]float64, len(freq))
		for i := range m.probs {
			m.probs[i] = 0.5
		}
	}
	for i, f := range freq {
		v := (1-m.learningRate)*m.probs[i] + m.learningRate*f
		m.probs[i] = clamp(v, 1e-6, 1-1e-6)
	}
	return nil
}

func (m *PBIL) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	if m.probs == nil {
		return nil, ErrNotFitted
	}
	return sampleBits(m.probs, count, rep, p, ch, r), nil
}

func (m *PBIL) Diagnostics() map[string]float64 {
	if m.probs == nil {
		return map[string]float64{}
	}
	return map[string]float64{
		"pbil_learning_rate":    m.learningRate,
		"pbil_mean_probability": meanOf(m.probs),
		"model_entropy":         binaryEntropy(m.probs),
	}
}
