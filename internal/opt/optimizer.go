// Package opt wraps third-party black-box optimizers so that their results
// can be compared with EDA runs on the same problems.
package opt

import "context"

// Optimizer minimizes a function over a box.
type Optimizer interface {
	// Run minimizes eval over [lower, upper] and returns the best point and
	// its cost. lower and upper must have the same length.
	Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)
}
