package model

import (
	"math"

	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// EdgeHistogram models permutations through the frequency of adjacent
// pairs (edges) in the selection, treated as a cycle.
type EdgeHistogram struct {
	epsilon     float64
	transitions [][]float64
}

// NewEdgeHistogram creates the model; epsilon smooths unseen edges.
func NewEdgeHistogram(epsilon float64) *EdgeHistogram {
	return &EdgeHistogram{epsilon: math.Max(1e-9, epsilon)}
}

func (m *EdgeHistogram) Name() string { return "ehm" }

func (m *EdgeHistogram) Fit(selected *eda.Population, _ eda.Representation, _ *rng.Stream) error {
	if selected.Len() == 0 {
		return nil
	}
	orders := make([]eda.Permutation, selected.Len())
	for i := range orders {
		v, ok := selected.At(i).Genotype.(eda.Permutation)
		if !ok {
			return kindError(m.Name(), selected.At(i).Genotype, eda.KindPermutation)
		}
		orders[i] = v
	}

	n := len(orders[0])
	t := make([][]float64, n)
	for i := range t {
		t[i] = make([]float64, n)
		for j := range t[i] {
			if i != j {
				t[i][j] = m.epsilon
			}
		}
	}
	for _, order := range orders {
		if len(order) != n {
			return &eda.ConfigError{Component: "model ehm", Reason: "selected permutations differ in size"}
		}
		for i := range order {
			from, to := order[i], order[(i+1)%n]
			if from >= 0 && from < n && to >= 0 && to < n {
				t[from][to]++
			}
		}
	}
	for _, row := range t {
		var sum float64
		for _, v := range row {
			sum += v
		}
		if sum <= 0 {
			continue
		}
		for j := range row {
			row[j] /= sum
		}
	}
	m.transitions = t
	return nil
}

func (m *EdgeHistogram) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	if m.transitions == nil {
		return nil, ErrNotFitted
	}
	n := len(m.transitions)
	out := make([]eda.Genotype, count)
	for k := range out {
		perm := make(eda.Permutation, n)
		used := make([]bool, n)
		current := r.IntN(n)
		perm[0] = current
		used[current] = true
		for pos := 1; pos < n; pos++ {
			current = m.next(current, used, r)
			perm[pos] = current
			used[current] = true
		}
		out[k] = ch.Enforce(perm, rep, p, r)
	}
	return out, nil
}

// next draws the successor of current among unused cities by roulette over
// the transition row.
func (m *EdgeHistogram) next(current int, used []bool, r *rng.Stream) int {
	row := m.transitions[current]
	var total float64
	for city, w := range row {
		if !used[city] {
			total += w
		}
	}
	if total <= 0 {
		for city := range used {
			if !used[city] {
				return city
			}
		}
		return 0
	}

	target := r.Float64() * total
	var cumulative float64
	for city, w := range row {
		if used[city] {
			continue
		}
		cumulative += w
		if cumulative >= target {
			return city
		}
	}
	for city := len(used) - 1; city >= 0; city-- {
		if !used[city] {
			return city
		}
	}
	return 0
}

func (m *EdgeHistogram) Diagnostics() map[string]float64 {
	if m.transitions == nil {
		return map[string]float64{}
	}
	var entropy float64
	for _, row := range m.transitions {
		for _, p := range row {
			entropy += entropyTerm(p)
		}
	}
	return map[string]float64{
		"ehm_entropy": entropy,
		"ehm_size":    float64(len(m.transitions)),
	}
}

// Random samples uniformly from the representation. It backs model-free
// algorithms such as random search.
type Random struct{}

// NewRandom creates the model.
func NewRandom() *Random { return &Random{} }

func (m *Random) Name() string { return "random" }

func (m *Random) Fit(*eda.Population, eda.Representation, *rng.Stream) error { return nil }

func (m *Random) Sample(count int, rep eda.Representation, p eda.Problem, ch eda.ConstraintHandling, r *rng.Stream) ([]eda.Genotype, error) {
	out := make([]eda.Genotype, count)
	for i := range out {
		out[i] = ch.Enforce(rep.Random(r), rep, p, r)
	}
	return out, nil
}

func (m *Random) Diagnostics() map[string]float64 { return map[string]float64{} }
