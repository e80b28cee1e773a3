package model

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when a model considers itself stagnated.
type ConvergenceConfig struct {
	// Enabled controls whether stagnation detection is active
	Enabled bool

	// Patience is the number of fit calls with no significant improvement
	// before stagnation is reported
	Patience int

	// Threshold is the minimum relative improvement required to count as
	// progress. Relative improvement = (last - cost) / |last|
	Threshold float64
}

// DefaultConvergenceConfig returns defaults for stagnation detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  20,
		Threshold: 1e-9,
	}
}

// TrackerState is the serializable part of a ConvergenceTracker.
type TrackerState struct {
	Updates         int     `json:"updates"`
	BestCost        float64 `json:"bestCost"`
	LastSignificant float64 `json:"lastSignificant"`
	StaleCount      int     `json:"staleCount"`
}

// ConvergenceTracker follows the best cost per fit call. Costs are always
// minimized; callers negate values of maximization problems.
type ConvergenceTracker struct {
	config ConvergenceConfig
	state  TrackerState
}

// NewConvergenceTracker creates a new tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	t := &ConvergenceTracker{config: config}
	t.Reset()
	return t
}

// Update records a new cost value and returns true once the tracker has
// seen Patience consecutive updates without significant improvement
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled || c.config.Patience <= 0 {
		return false
	}

	c.state.Updates++
	if cost < c.state.BestCost {
		c.state.BestCost = cost
	}

	if c.state.Updates == 1 {
		c.state.LastSignificant = cost
		return false
	}

	relativeImprovement := (c.state.LastSignificant - cost) / math.Max(math.Abs(c.state.LastSignificant), 1e-300)
	if relativeImprovement > c.config.Threshold {
		c.state.LastSignificant = cost
		c.state.StaleCount = 0
		return false
	}

	c.state.StaleCount++
	if c.state.StaleCount >= c.config.Patience {
		slog.Debug("Model stagnation detected",
			"stale_count", c.state.StaleCount,
			"patience", c.config.Patience,
			"best_cost", c.state.BestCost,
		)
		return true
	}
	return false
}

// BestCost returns the best cost seen since the last reset
func (c *ConvergenceTracker) BestCost() float64 {
	return c.state.BestCost
}

// StaleCount returns the current number of updates without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.state.StaleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.state = TrackerState{
		BestCost:        math.MaxFloat64,
		LastSignificant: math.MaxFloat64,
	}
}

// State returns a copy of the tracker state.
func (c *ConvergenceTracker) State() TrackerState {
	return c.state
}

// SetState restores a previously captured state.
func (c *ConvergenceTracker) SetState(s TrackerState) {
	c.state = s
}
