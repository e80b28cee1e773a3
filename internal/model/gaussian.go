package model

import (
	"math"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// DiagonalGaussian samples each coordinate from an independent normal.
type DiagonalGaussian struct {
	minSigma float64
	mean     []float64
	sigma    []float64
}

// NewDiagonalGaussian creates the model; minSigma is at least 1e-8.
func NewDiagonalGaussian(minSigma float64) *DiagonalGaussian {
	return &DiagonalGaussian{minSigma: math.Max(1e-8, minSigma)}
}

func (m *DiagonalGaussian) Name() string { return "gaussian-diag" }

func (m *DiagonalGaussian) Fit(selected *eda.Population, _ eda.Representation, _ *rng.Stream) error {
	if selected.Len() == 0 {
		return nil
	}
	xs, err := realVectors(m.Name(), selected)
	if err != nil {
		return err
	}
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
	return nil
}

func (m *DiagonalGaussian) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	if m.mean == nil || m.sigma == nil {
		return nil, ErrNotFitted
	}
	out := make([]eda.Genotype, count)
	for n := range out {
		x := make(eda.RealVector, len(m.mean))
		for d := range x {
			x[d] = m.mean[d] + m.sigma[d]*r.NormFloat64()
		}
		out[n] = ch.Enforce(x, rep, p, r)
	}
	return out, nil
}

func (m *DiagonalGaussian) Diagnostics() map[string]float64 {
	if m.sigma == nil {
		return map[string]float64{}
	}
	lo, hi := minMax(m.sigma)
	return map[string]float64{
		"gaussian_dim":         float64(len(m.mean)),
		"gaussian_sigma_min":   lo,
		"gaussian_sigma_max":   hi,
		"cov_condition_number": hi / math.Max(m.minSigma, lo),
	}
}

// FullGaussian samples from a multivariate normal with full covariance.
type FullGaussian struct {
	jitter   float64
	mean     []float64
	cov      [][]float64
	cholesky [][]float64
}

// NewFullGaussian creates the model; jitter is at least 1e-10.
func NewFullGaussian(jitter float64) *FullGaussian {
	return &FullGaussian{jitter: math.Max(1e-10, jitter)}
}

func (m *FullGaussian) Name() string { return "gaussian-full" }

func (m *FullGaussian) Fit(selected *eda.Population, _ eda.Representation, _ *rng.Stream) error {
	if selected.Len() == 0 {
		return nil
	}
	xs, err := realVectors(m.Name(), selected)
	if err != nil {
		return err
	}
	m.mean = empiricalMean(xs)
	cov := empiricalCovariance(xs, m.mean, m.jitter)
	m.cov = denseRows(cov, len(m.mean))
	m.factorize()
	return nil
}

func (m *FullGaussian) factorize() {
	if !allFinite(m.cov) {
		m.cov = identityRows(len(m.mean))
	}
	m.cholesky = choleskyWithRetry(symFromRows(m.cov), m.jitter)
}

func (m *FullGaussian) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	if m.mean == nil || m.cholesky == nil {
		return nil, ErrNotFitted
	}
	dim := len(m.mean)
	out := make([]eda.Genotype, count)
	z := make([]float64, dim)
	for n := range out {
		for i := range z {
			z[i] = r.NormFloat64()
		}
		x := make(eda.RealVector, dim)
		for i := 0; i < dim; i++ {
			acc := 0.0
			for j := 0; j <= i; j++ {
				acc += m.cholesky[i][j] * z[j]
			}
			x[i] = m.mean[i] + acc
		}
		out[n] = ch.Enforce(x, rep, p, r)
	}
	return out, nil
}

func (m *FullGaussian) Diagnostics() map[string]float64 {
	if m.cov == nil {
		return map[string]float64{}
	}
	diag := make([]float64, len(m.cov))
	for i := range diag {
		diag[i] = m.cov[i][i]
	}
	lo, hi := minMax(diag)
	return map[string]float64{
		"gaussian_dim":         float64(len(m.cov)),
		"cov_condition_number": hi / math.Max(m.jitter, lo),
	}
}
