// Package policy provides the selection, replacement, stopping, constraint,
// restart, niching and local search policies the engine is assembled from.
package policy

import (
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// Truncation selects the top count individuals. Ties keep population order.
type Truncation struct{}

func (Truncation) Name() string { return "truncation" }

func (Truncation) Select(pop *eda.Population, count int, _ *rng.Stream) []eda.Individual {
	if count <= 0 || pop.Len() == 0 {
		return nil
	}
	sorted := pop.Sorted()
	if count > sorted.Len() {
		count = sorted.Len()
	}
	sorted.Truncate(count)
	return sorted.Individuals()
}

// Tournament runs count independent k-way tournaments with replacement.
type Tournament struct {
	Size int
}

// NewTournament creates a tournament policy; sizes below 2 become 2.
func NewTournament(size int) Tournament {
	if size < 2 {
		size = 2
	}
	return Tournament{Size: size}
}

func (Tournament) Name() string { return "tournament" }

func (t Tournament) Select(pop *eda.Population, count int, r *rng.Stream) []eda.Individual {
	n := pop.Len()
	if count <= 0 || n == 0 {
		return nil
	}
	size := t.Size
	if size < 2 {
		size = 2
	}

	sense := pop.Sense()
	out := make([]eda.Individual, count)
	for i := range out {
		best := pop.At(r.IntN(n))
		for k := 1; k < size; k++ {
			candidate := pop.At(r.IntN(n))
			if sense.Better(candidate.Value(), best.Value()) {
				best = candidate
			}
		}
		out[i] = best
	}
	return out
}
