package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/goeda/internal/eda"
)

// ErrUnknownModelState is returned for model types without a state codec.
var ErrUnknownModelState = errors.New("unknown model state type")

// ErrModelStateMismatch is returned when a state is restored into a model of
// a different type.
var ErrModelStateMismatch = errors.New("model state type mismatch")

type probabilityState struct {
	Probabilities []float64 `json:"probabilities"`
}

type diagonalGaussianState struct {
	Mean  []float64 `json:"mean"`
	Sigma []float64 `json:"sigma"`
}

type fullGaussianState struct {
	Mean       []float64   `json:"mean"`
	Covariance [][]float64 `json:"covariance"`
}

type cmaesState struct {
	Initialized bool         `json:"initialized"`
	Mean        []float64    `json:"mean"`
	Sigma       float64      `json:"sigma"`
	Covariance  [][]float64  `json:"covariance"`
	PathSigma   []float64    `json:"pathSigma"`
	PathCov     []float64    `json:"pathCov"`
	Generation  int          `json:"generation"`
	Restarts    int          `json:"restarts"`
	Stagnation  TrackerState `json:"stagnation"`
}

type edgeHistogramState struct {
	Transitions [][]float64 `json:"transitions"`
}

type categoricalState struct {
	Probabilities [][]float64 `json:"probabilities"`
	Lengths       []float64   `json:"lengths,omitempty"`
	Mean          []float64   `json:"mean,omitempty"`
	Sigma         []float64   `json:"sigma,omitempty"`
}

// EncodeState serializes the state of m into a tagged envelope.
func EncodeState(m eda.Model) (eda.ModelState, error) {
	var payload any
	switch t := m.(type) {
	case *Bernoulli:
		payload = probabilityState{Probabilities: t.probs}
	case *PBIL:
		payload = probabilityState{Probabilities: t.probs}
	case *DiagonalGaussian:
		payload = diagonalGaussianState{Mean: t.mean, Sigma: t.sigma}
	case *FullGaussian:
		payload = fullGaussianState{Mean: t.mean, Covariance: t.cov}
	case *CMAES:
		payload = cmaesState{
			Initialized: t.initialized,
			Mean:        t.mean,
			Sigma:       t.sigma,
			Covariance:  t.cov,
			PathSigma:   t.pathSigma,
			PathCov:     t.pathCov,
			Generation:  t.generation,
			Restarts:    t.restarts,
			Stagnation:  t.tracker.State(),
		}
	case *EdgeHistogram:
		payload = edgeHistogramState{Transitions: t.transitions}
	case *Categorical:
		payload = categoricalState{Probabilities: t.probs, Lengths: t.lengths, Mean: t.mean, Sigma: t.sigma}
	case *Random:
		return eda.ModelState{Type: t.Name()}, nil
	default:
		return eda.ModelState{}, fmt.Errorf("%w: %T", ErrUnknownModelState, m)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return eda.ModelState{}, fmt.Errorf("encode %s state: %w", m.Name(), err)
	}
	return eda.ModelState{Type: m.Name(), Payload: data}, nil
}

// DecodeState restores st into m. The envelope type must match the model.
func DecodeState(m eda.Model, st eda.ModelState) error {
	if st.Type != m.Name() {
		return fmt.Errorf("%w: checkpoint has %q, model is %q", ErrModelStateMismatch, st.Type, m.Name())
	}

	switch t := m.(type) {
	case *Bernoulli:
		var s probabilityState
		if err := unmarshalPayload(st, &s); err != nil {
			return err
		}
		if err := checkProbabilities(st.Type, s.Probabilities); err != nil {
			return err
		}
		t.probs = s.Probabilities
	case *PBIL:
		var s probabilityState
		if err := unmarshalPayload(st, &s); err != nil {
			return err
		}
		if err := checkProbabilities(st.Type, s.Probabilities); err != nil {
			return err
		}
		t.probs = s.Probabilities
	case *DiagonalGaussian:
		var s diagonalGaussianState
		if err := unmarshalPayload(st, &s); err != nil {
			return err
		}
		if len(s.Mean) != len(s.Sigma) {
			return fmt.Errorf("decode %s state: mean and sigma differ in length", st.Type)
		}
		if err := checkVector(st.Type, "mean", s.Mean); err != nil {
			return err
		}
		if err := checkSigmas(st.Type, s.Sigma); err != nil {
			return err
		}
		t.mean, t.sigma = s.Mean, s.Sigma
	case *FullGaussian:
		var s fullGaussianState
		if err := unmarshalPayload(st, &s); err != nil {
			return err
		}
		if err := checkVector(st.Type, "mean", s.Mean); err != nil {
			return err
		}
		if err := checkSquare(st.Type, s.Covariance, len(s.Mean)); err != nil {
			return err
		}
		t.mean, t.cov, t.cholesky = s.Mean, s.Covariance, nil
		if t.mean != nil {
			t.factorize()
		}
	case *CMAES:
		var s cmaesState
		if err := unmarshalPayload(st, &s); err != nil {
			return err
		}
		n := len(s.Mean)
		if err := checkSquare(st.Type, s.Covariance, n); err != nil {
			return err
		}
		if len(s.PathSigma) != n || len(s.PathCov) != n {
			return fmt.Errorf("decode %s state: evolution paths do not match dimension %d", st.Type, n)
		}
		if s.Initialized {
			if err := checkVector(st.Type, "mean", s.Mean); err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("decode %s state: initialized with an empty mean", st.Type)
			}
			if !(s.Sigma > 0) || math.IsInf(s.Sigma, 0) {
				return fmt.Errorf("decode %s state: step size %g is not positive and finite", st.Type, s.Sigma)
			}
		}
		t.initialized = s.Initialized
		t.mean, t.sigma, t.cov = s.Mean, s.Sigma, s.Covariance
		t.pathSigma, t.pathCov = s.PathSigma, s.PathCov
		t.generation, t.restarts = s.Generation, s.Restarts
		t.tracker.SetState(s.Stagnation)
		t.basis, t.scales = nil, nil
		if t.initialized {
			t.decompose()
		}
	case *EdgeHistogram:
		var s edgeHistogramState
		if err := unmarshalPayload(st, &s); err != nil {
			return err
		}
		if s.Transitions != nil && len(s.Transitions) == 0 {
			return fmt.Errorf("decode %s state: transitions are empty", st.Type)
		}
		if err := checkSquare(st.Type, s.Transitions, len(s.Transitions)); err != nil {
			return err
		}
		for _, row := range s.Transitions {
			for _, w := range row {
				if !(w >= 0) || math.IsInf(w, 0) {
					return fmt.Errorf("decode %s state: transition weight %g is not a finite non-negative number", st.Type, w)
				}
			}
		}
		t.transitions = s.Transitions
	case *Categorical:
		var s categoricalState
		if err := unmarshalPayload(st, &s); err != nil {
			return err
		}
		if err := t.checkState(s); err != nil {
			return fmt.Errorf("decode %s state: %w", st.Type, err)
		}
		t.probs, t.lengths, t.mean, t.sigma = s.Probabilities, s.Lengths, s.Mean, s.Sigma
	case *Random:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnknownModelState, m)
	}
	return nil
}

// CheckDimension reports an error when a fitted model was built for genotypes
// of a different length than sample, a valid genotype of the run's
// representation. Unfitted models and models without a fixed dimension pass.
func CheckDimension(m eda.Model, sample eda.Genotype) error {
	n, fitted := fittedDimension(m)
	if !fitted {
		return nil
	}
	want, fixed := genotypeLength(sample)
	if !fixed || n == want {
		return nil
	}
	return fmt.Errorf("%s state has dimension %d, representation has %d", m.Name(), n, want)
}

func fittedDimension(m eda.Model) (int, bool) {
	switch t := m.(type) {
	case *Bernoulli:
		return len(t.probs), t.probs != nil
	case *PBIL:
		return len(t.probs), t.probs != nil
	case *DiagonalGaussian:
		return len(t.mean), t.mean != nil
	case *FullGaussian:
		return len(t.mean), t.mean != nil
	case *CMAES:
		return len(t.mean), t.initialized
	case *EdgeHistogram:
		return len(t.transitions), t.transitions != nil
	default:
		return 0, false
	}
}

func genotypeLength(g eda.Genotype) (int, bool) {
	switch v := g.(type) {
	case eda.BitString:
		return len(v), true
	case eda.RealVector:
		return len(v), true
	case eda.Permutation:
		return len(v), true
	default:
		return 0, false
	}
}

// checkState validates a decoded state against the model's domain.
func (m *Categorical) checkState(s categoricalState) error {
	if s.Probabilities == nil {
		if s.Lengths != nil || s.Mean != nil || s.Sigma != nil {
			return errors.New("marginals are missing")
		}
		return nil
	}
	d := m.domain
	if len(s.Probabilities) != d.positions() {
		return fmt.Errorf("%d marginals, domain has %d positions", len(s.Probabilities), d.positions())
	}
	for pos, row := range s.Probabilities {
		if len(row) != d.cardinality(pos) {
			return fmt.Errorf("position %d has %d values, domain has %d", pos, len(row), d.cardinality(pos))
		}
		if err := checkDistribution(row); err != nil {
			return fmt.Errorf("position %d: %w", pos, err)
		}
	}
	if d.variable() {
		if len(s.Lengths) != d.MaxLength-d.MinLength+1 {
			return fmt.Errorf("length distribution has %d entries, want %d", len(s.Lengths), d.MaxLength-d.MinLength+1)
		}
		if err := checkDistribution(s.Lengths); err != nil {
			return fmt.Errorf("lengths: %w", err)
		}
	} else if s.Lengths != nil {
		return errors.New("fixed-length domain has a length distribution")
	}
	if len(s.Mean) != d.RealDimensions || len(s.Sigma) != d.RealDimensions {
		return fmt.Errorf("real part has %d/%d dimensions, domain has %d", len(s.Mean), len(s.Sigma), d.RealDimensions)
	}
	if err := checkVector(m.Name(), "mean", s.Mean); err != nil {
		return err
	}
	return checkSigmas(m.Name(), s.Sigma)
}

func checkDistribution(row []float64) error {
	var total float64
	for _, p := range row {
		if !(p >= 0 && p <= 1) {
			return fmt.Errorf("probability %g is outside [0, 1]", p)
		}
		total += p
	}
	if math.Abs(total-1) > 1e-6 {
		return fmt.Errorf("probabilities sum to %g", total)
	}
	return nil
}

func checkProbabilities(kind string, probs []float64) error {
	if probs != nil && len(probs) == 0 {
		return fmt.Errorf("decode %s state: probabilities are empty", kind)
	}
	for i, p := range probs {
		if !(p >= 0 && p <= 1) {
			return fmt.Errorf("decode %s state: probability %d is %g, outside [0, 1]", kind, i, p)
		}
	}
	return nil
}

func checkVector(kind, field string, v []float64) error {
	if v != nil && len(v) == 0 {
		return fmt.Errorf("decode %s state: %s is empty", kind, field)
	}
	if !finiteVec(v) {
		return fmt.Errorf("decode %s state: %s is not finite", kind, field)
	}
	return nil
}

func checkSigmas(kind string, sigma []float64) error {
	for i, s := range sigma {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("decode %s state: sigma %d is %g, want positive and finite", kind, i, s)
		}
	}
	return nil
}

func unmarshalPayload(st eda.ModelState, v any) error {
	if len(st.Payload) == 0 {
		return fmt.Errorf("decode %s state: empty payload", st.Type)
	}
	if err := json.Unmarshal(st.Payload, v); err != nil {
		return fmt.Errorf("decode %s state: %w", st.Type, err)
	}
	return nil
}

func checkSquare(kind string, rows [][]float64, n int) error {
	if rows == nil && n == 0 {
		return nil
	}
	if len(rows) != n {
		return fmt.Errorf("decode %s state: matrix has %d rows, want %d", kind, len(rows), n)
	}
	for _, row := range rows {
		if len(row) != n {
			return fmt.Errorf("decode %s state: matrix is not %dx%d", kind, n, n)
		}
	}
	return nil
}
