package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cwbudde/goeda/internal/eda"
)

// realVectors extracts the real vectors of a selection.
func realVectors(model string, pop *eda.Population) ([][]float64, error) {
	out := make([][]float64, pop.Len())
	for i := 0; i < pop.Len(); i++ {
		v, ok := pop.At(i).Genotype.(eda.RealVector)
		if !ok {
			return nil, kindError(model, pop.At(i).Genotype, eda.KindRealVector)
		}
		if i > 0 && len(v) != len(out[0]) {
			return nil, &eda.ConfigError{Component: "model " + model, Reason: "selected vectors differ in length"}
		}
		out[i] = v
	}
	return out, nil
}

func empiricalMean(xs [][]float64) []float64 {
	mean := make([]float64, len(xs[0]))
	for _, x := range xs {
		for i, v := range x {
			mean[i] += v
		}
	}
	inv := 1.0 / float64(len(xs))
	for i := range mean {
		mean[i] *= inv
	}
	return mean
}

// empiricalCovariance returns the unbiased sample covariance plus jitter on
// the diagonal.
func empiricalCovariance(xs [][]float64, mean []float64, jitter float64) *mat.SymDense {
	n := len(mean)
	cov := mat.NewSymDense(n, nil)
	denom := math.Max(1, float64(len(xs)-1))
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var sum float64
			for _, x := range xs {
				sum += (x[i] - mean[i]) * (x[j] - mean[j])
			}
			v := sum / denom
			if i == j {
				v += jitter
			}
			cov.SetSym(i, j, v)
		}
	}
	return cov
}

// choleskyWithRetry factorizes cov, adding growing jitter to the diagonal on
// failure. After seven attempts it falls back to the diagonal factor.
func choleskyWithRetry(cov *mat.SymDense, jitter float64) [][]float64 {
	n := cov.SymmetricDim()
	scale := 1.0
	for attempt := 0; attempt < 7; attempt++ {
		candidate := mat.NewSymDense(n, nil)
		candidate.CopySym(cov)
		for i := 0; i < n; i++ {
			candidate.SetSym(i, i, candidate.At(i, i)+jitter*scale)
		}
		var chol mat.Cholesky
		if chol.Factorize(candidate) {
			var l mat.TriDense
			chol.LTo(&l)
			return denseRows(&l, n)
		}
		scale *= 10
	}

	lower := make([][]float64, n)
	for i := range lower {
		lower[i] = make([]float64, n)
		lower[i][i] = math.Sqrt(math.Max(jitter, cov.At(i, i)))
	}
	return lower
}

func denseRows(m mat.Matrix, n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}

func symFromRows(rows [][]float64) *mat.SymDense {
	n := len(rows)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(rows[i][j]+rows[j][i]))
		}
	}
	return s
}

func identityRows(n int) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		rows[i][i] = 1
	}
	return rows
}

func allFinite(rows [][]float64) bool {
	for _, row := range rows {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// eigenFloor decomposes the symmetric matrix rows, floors its eigenvalues at
// minEig and returns the eigenvectors (columns) and the floored eigenvalues.
// A failed decomposition falls back to the floored diagonal.
func eigenFloor(rows [][]float64, minEig float64) (*mat.Dense, []float64) {
	n := len(rows)
	var eig mat.EigenSym
	if eig.Factorize(symFromRows(rows), true) {
		values := eig.Values(nil)
		var vectors mat.Dense
		eig.VectorsTo(&vectors)
		for i, v := range values {
			if math.IsNaN(v) || v < minEig {
				values[i] = minEig
			}
		}
		return &vectors, values
	}

	vectors := mat.NewDense(n, n, nil)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		vectors.Set(i, i, 1)
		values[i] = math.Max(minEig, rows[i][i])
	}
	return vectors, values
}

// recompose returns B diag(values) Bᵀ as rows.
func recompose(vectors *mat.Dense, values []float64) [][]float64 {
	n := len(values)
	var scaled mat.Dense
	scaled.Scale(1, vectors)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			scaled.Set(i, j, scaled.At(i, j)*values[j])
		}
	}
	var out mat.Dense
	out.Mul(&scaled, vectors.T())
	rows := denseRows(&out, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sym := 0.5 * (rows[i][j] + rows[j][i])
			rows[i][j], rows[j][i] = sym, sym
		}
	}
	return rows
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func copyRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
