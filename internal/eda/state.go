package eda

import (
	"encoding/json"
	"time"
)

// AlgorithmState is the mutable progress of one run. Only the engine
// mutates it; policies receive it read-only.
type AlgorithmState struct {
	RunID       string
	AlgorithmID string
	Iteration   int
	Evaluations int64
	StartedAt   time.Time
	Population  *Population
	Best        Individual
	HasBest     bool

	// LastImprovement is the iteration at which Best last improved.
	LastImprovement int
	// Restarts counts engine-level restarts.
	Restarts int
}

// BestValue returns the best scalar fitness, or the worst value for the
// sense if nothing has been evaluated yet.
func (s *AlgorithmState) BestValue() float64 {
	if !s.HasBest {
		if s.Population != nil {
			return s.Population.Sense().Worst()
		}
		return Minimize.Worst()
	}
	return s.Best.Value()
}

// ModelState is a serialized model, tagged by model type.
type ModelState struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
