package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// CMAESConfig holds the step-size bounds, numerical floors and restart
// settings of the CMA-ES model.
type CMAESConfig struct {
	InitialSigma  float64
	MinSigma      float64
	MaxSigma      float64
	MinEigenvalue float64
	Jitter        float64

	// Restart re-inflates sigma and resets the covariance when the best
	// selected fitness stagnates. Patience <= 0 disables it.
	Restart            ConvergenceConfig
	RestartSigmaFactor float64
}

// DefaultCMAESConfig returns the default configuration.
func DefaultCMAESConfig() CMAESConfig {
	return CMAESConfig{
		InitialSigma:       0.5,
		MinSigma:           1e-12,
		MaxSigma:           1e6,
		MinEigenvalue:      1e-14,
		Jitter:             1e-14,
		Restart:            ConvergenceConfig{Enabled: false},
		RestartSigmaFactor: 2,
	}
}

func (c CMAESConfig) normalized() CMAESConfig {
	c.MinSigma = math.Max(1e-300, c.MinSigma)
	if c.MaxSigma < c.MinSigma {
		c.MaxSigma = c.MinSigma
	}
	c.InitialSigma = clamp(finiteOr(c.InitialSigma, 0.5), c.MinSigma, c.MaxSigma)
	c.MinEigenvalue = math.Max(1e-300, c.MinEigenvalue)
	c.Jitter = math.Max(0, c.Jitter)
	if c.RestartSigmaFactor < 1 {
		c.RestartSigmaFactor = 1
	}
	c.Restart.Enabled = c.Restart.Enabled && c.Restart.Patience > 0
	return c
}

// CMAES is a covariance matrix adaptation evolution strategy expressed as a
// fit/sample model. Samples are mean + sigma·B·D·z with C = B·D²·Bᵀ.
type CMAES struct {
	cfg CMAESConfig

	initialized bool
	mean        []float64
	sigma       float64
	cov         [][]float64
	pathSigma   []float64
	pathCov     []float64
	generation  int
	restarts    int
	tracker     *ConvergenceTracker

	basis  *mat.Dense
	scales []float64
}

// NewCMAES creates an unfitted CMA-ES model.
func NewCMAES(cfg CMAESConfig) *CMAES {
	cfg = cfg.normalized()
	return &CMAES{cfg: cfg, tracker: NewConvergenceTracker(cfg.Restart)}
}

func (m *CMAES) Name() string { return "cma-es" }

type cmaesParams struct {
	weights        []float64
	mueff          float64
	cc, cs, c1, cm float64
	damps, chiN    float64
}

func newCMAESParams(n, mu int) cmaesParams {
	weights := make([]float64, mu)
	var sum float64
	for i := range weights {
		weights[i] = math.Log(float64(mu)+0.5) - math.Log(float64(i+1))
		sum += weights[i]
	}
	var sq float64
	for i := range weights {
		weights[i] /= sum
		sq += weights[i] * weights[i]
	}
	mueff := 1 / sq
	fn := float64(n)

	p := cmaesParams{weights: weights, mueff: mueff}
	p.cc = (4 + mueff/fn) / (fn + 4 + 2*mueff/fn)
	p.cs = (mueff + 2) / (fn + mueff + 5)
	p.c1 = 2 / ((fn+1.3)*(fn+1.3) + mueff)
	p.cm = math.Min(1-p.c1, 2*(mueff-2+1/mueff)/((fn+2)*(fn+2)+mueff))
	p.damps = 1 + 2*math.Max(0, math.Sqrt((mueff-1)/(fn+1))-1) + p.cs
	p.chiN = math.Sqrt(fn) * (1 - 1/(4*fn) + 1/(21*fn*fn))
	return p
}

// Fit performs one CMA-ES update from the selected individuals, ranked best
// first. The first call only places the mean.
func (m *CMAES) Fit(selected *eda.Population, _ eda.Representation, _ *rng.Stream) error {
	if selected.Len() == 0 {
		return nil
	}
	ranked := selected.Sorted()
	xs, err := realVectors(m.Name(), ranked)
	if err != nil {
		return err
	}
	n := len(xs[0])

	if !m.initialized || len(m.mean) != n {
		m.reset(n, empiricalMean(xs), m.cfg.InitialSigma)
		m.initialized = true
		m.observe(ranked)
		return nil
	}

	p := newCMAESParams(n, len(xs))
	old := m.mean
	mean := make([]float64, n)
	for i, x := range xs {
		for d := range mean {
			mean[d] += p.weights[i] * x[d]
		}
	}

	yw := make([]float64, n)
	for d := range yw {
		yw[d] = (mean[d] - old[d]) / m.sigma
	}

	// C^{-1/2}·yw = B·D^{-1}·Bᵀ·yw with the pre-update decomposition.
	invSqrt := m.invSqrtTimes(yw)
	csFactor := math.Sqrt(p.cs * (2 - p.cs) * p.mueff)
	for d := range m.pathSigma {
		m.pathSigma[d] = (1-p.cs)*m.pathSigma[d] + csFactor*invSqrt[d]
	}
	psNorm := norm(m.pathSigma)

	hsig := 0.0
	denom := math.Sqrt(1 - math.Pow(1-p.cs, 2*float64(m.generation+1)))
	if psNorm/denom/p.chiN < 1.4+2/(float64(n)+1) {
		hsig = 1
	}

	ccFactor := math.Sqrt(p.cc * (2 - p.cc) * p.mueff)
	for d := range m.pathCov {
		m.pathCov[d] = (1-p.cc)*m.pathCov[d] + hsig*ccFactor*yw[d]
	}

	ys := make([][]float64, len(xs))
	for i, x := range xs {
		ys[i] = make([]float64, n)
		for d := range x {
			ys[i][d] = (x[d] - old[d]) / m.sigma
		}
	}

	keep := 1 - p.c1 - p.cm
	correction := (1 - hsig) * p.cc * (2 - p.cc)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rankMu := 0.0
			for k, y := range ys {
				rankMu += p.weights[k] * y[i] * y[j]
			}
			m.cov[i][j] = keep*m.cov[i][j] +
				p.c1*(m.pathCov[i]*m.pathCov[j]+correction*m.cov[i][j]) +
				p.cm*rankMu
		}
	}

	m.sigma *= math.Exp((p.cs / p.damps) * (psNorm/p.chiN - 1))
	m.mean = mean
	m.generation++

	if m.observe(ranked) {
		m.restart()
	}
	m.regularize()
	return nil
}

// observe feeds the best selected fitness to the stagnation tracker.
func (m *CMAES) observe(ranked *eda.Population) bool {
	best := ranked.At(0).Value()
	if ranked.Sense() == eda.Maximize {
		best = -best
	}
	return m.tracker.Update(best)
}

func (m *CMAES) restart() {
	sigma := math.Max(m.cfg.InitialSigma, m.sigma*m.cfg.RestartSigmaFactor)
	m.reset(len(m.mean), m.mean, sigma)
	m.restarts++
	m.tracker.Reset()
}

func (m *CMAES) reset(n int, mean []float64, sigma float64) {
	m.mean = append([]float64(nil), mean...)
	m.sigma = sigma
	m.cov = identityRows(n)
	m.pathSigma = make([]float64, n)
	m.pathCov = make([]float64, n)
	m.regularize()
}

// regularize enforces the numerical floors: finite state, sigma within
// bounds, symmetric covariance with eigenvalues >= MinEigenvalue.
func (m *CMAES) regularize() {
	n := len(m.mean)
	for d := range m.mean {
		m.mean[d] = finiteOr(m.mean[d], 0)
	}
	m.sigma = clamp(finiteOr(m.sigma, m.cfg.InitialSigma), m.cfg.MinSigma, m.cfg.MaxSigma)
	if !allFinite(m.cov) {
		m.cov = identityRows(n)
		m.pathCov = make([]float64, n)
	}
	if !finiteVec(m.pathSigma) {
		m.pathSigma = make([]float64, n)
	}
	if !finiteVec(m.pathCov) {
		m.pathCov = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		m.cov[i][i] += m.cfg.Jitter
	}
	vectors, values := eigenFloor(m.cov, m.cfg.MinEigenvalue)
	m.cov = recompose(vectors, values)
	m.decompose()
}

// decompose derives B and D from the current covariance.
func (m *CMAES) decompose() {
	vectors, values := eigenFloor(m.cov, m.cfg.MinEigenvalue)
	scales := make([]float64, len(values))
	for i, v := range values {
		scales[i] = math.Sqrt(v)
	}
	m.basis, m.scales = vectors, scales
}

func (m *CMAES) invSqrtTimes(v []float64) []float64 {
	n := len(v)
	tmp := make([]float64, n)
	for j := 0; j < n; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += m.basis.At(i, j) * v[i]
		}
		tmp[j] = s / m.scales[j]
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += m.basis.At(i, j) * tmp[j]
		}
		out[i] = s
	}
	return out
}

func (m *CMAES) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	if !m.initialized || m.basis == nil {
		return nil, ErrNotFitted
	}
	n := len(m.mean)
	out := make([]eda.Genotype, count)
	scaled := make([]float64, n)
	for k := range out {
		for j := 0; j < n; j++ {
			scaled[j] = m.scales[j] * r.NormFloat64()
		}
		x := make(eda.RealVector, n)
		for i := 0; i < n; i++ {
			var s float64
			for j := 0; j < n; j++ {
				s += m.basis.At(i, j) * scaled[j]
			}
			x[i] = m.mean[i] + m.sigma*s
		}
		out[k] = ch.Enforce(x, rep, p, r)
	}
	return out, nil
}

func (m *CMAES) Diagnostics() map[string]float64 {
	if !m.initialized {
		return map[string]float64{}
	}
	lo, hi := minMax(m.scales)
	return map[string]float64{
		"cma_sigma":            m.sigma,
		"cma_generation":       float64(m.generation),
		"cma_restarts":         float64(m.restarts),
		"cma_path_sigma_norm":  norm(m.pathSigma),
		"cov_condition_number": (hi * hi) / math.Max(m.cfg.MinEigenvalue, lo*lo),
	}
}

// Sigma returns the current global step size.
func (m *CMAES) Sigma() float64 {
	if !m.initialized {
		return m.cfg.InitialSigma
	}
	return m.sigma
}

// Restarts returns how many internal restarts happened.
func (m *CMAES) Restarts() int { return m.restarts }

// Mean returns a copy of the distribution mean.
func (m *CMAES) Mean() []float64 { return append([]float64(nil), m.mean...) }

// Eigenvalues returns the floored eigenvalues of the covariance.
func (m *CMAES) Eigenvalues() []float64 {
	out := make([]float64, len(m.scales))
	for i, s := range m.scales {
		out[i] = s * s
	}
	return out
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func finiteVec(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
