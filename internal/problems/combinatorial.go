package problems

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/goeda/internal/eda"
)

// Knapsack maximizes the value of packed items under a weight capacity.
// Overweight selections are infeasible and score the negative overweight.
type Knapsack struct {
	Weights  []float64
	Values   []float64
	Capacity float64
}

// NewKnapsack validates the item lists.
func NewKnapsack(weights, values []float64, capacity float64) (*Knapsack, error) {
	if len(weights) == 0 || len(weights) != len(values) {
		return nil, fmt.Errorf("knapsack: need equally many weights and values, got %d and %d", len(weights), len(values))
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("knapsack: capacity must be > 0")
	}
	return &Knapsack{Weights: weights, Values: values, Capacity: capacity}, nil
}

// NewRandomKnapsack draws n items from seed; the capacity is half the total
// weight.
func NewRandomKnapsack(n int, seed uint64) (*Knapsack, error) {
	if n <= 0 {
		return nil, fmt.Errorf("knapsack: item count must be > 0")
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	weights := make([]float64, n)
	values := make([]float64, n)
	var total float64
	for i := range weights {
		weights[i] = float64(1 + r.IntN(20))
		values[i] = float64(1 + r.IntN(30))
		total += weights[i]
	}
	return NewKnapsack(weights, values, total/2)
}

func (*Knapsack) Name() string     { return "knapsack" }
func (*Knapsack) Sense() eda.Sense { return eda.Maximize }

func (p *Knapsack) totals(v eda.BitString) (weight, value float64) {
	for i, b := range v {
		if b && i < len(p.Weights) {
			weight += p.Weights[i]
			value += p.Values[i]
		}
	}
	return weight, value
}

// Feasible reports whether the selection fits the capacity.
func (p *Knapsack) Feasible(g eda.Genotype) bool {
	v, ok := g.(eda.BitString)
	if !ok {
		return false
	}
	weight, _ := p.totals(v)
	return weight <= p.Capacity
}

func (p *Knapsack) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	v, err := bits(p.Name(), g)
	if err != nil {
		return nil, err
	}
	if len(v) != len(p.Weights) {
		return nil, fmt.Errorf("%s: expected %d items, got %d", p.Name(), len(p.Weights), len(v))
	}
	weight, value := p.totals(v)
	if weight > p.Capacity {
		return eda.ScalarFitness(p.Capacity - weight), nil
	}
	return eda.ScalarFitness(value), nil
}

// TSP minimizes the length of a closed tour through the cities.
type TSP struct {
	Distances [][]float64
}

// NewTSP builds the distance matrix from city coordinates.
func NewTSP(cities [][2]float64) (*TSP, error) {
	n := len(cities)
	if n < 3 {
		return nil, fmt.Errorf("small-tsp: need at least 3 cities, got %d", n)
	}
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := range d[i] {
			d[i][j] = math.Hypot(cities[i][0]-cities[j][0], cities[i][1]-cities[j][1])
		}
	}
	return &TSP{Distances: d}, nil
}

// NewCircleTSP places n cities evenly on the unit circle under a labelling
// shuffled by seed. The optimal tour length is 2n·sin(π/n).
func NewCircleTSP(n int, seed uint64) (*TSP, error) {
	if n < 3 {
		return nil, fmt.Errorf("small-tsp: need at least 3 cities, got %d", n)
	}
	r := rand.New(rand.NewPCG(seed, seed^0x2545f4914f6cdd1d))
	labels := r.Perm(n)
	cities := make([][2]float64, n)
	for k, city := range labels {
		angle := 2 * math.Pi * float64(k) / float64(n)
		cities[city] = [2]float64{math.Cos(angle), math.Sin(angle)}
	}
	return NewTSP(cities)
}

// OptimalCircleTour returns the optimal tour length of NewCircleTSP(n, ...).
func OptimalCircleTour(n int) float64 {
	return 2 * float64(n) * math.Sin(math.Pi/float64(n))
}

func (*TSP) Name() string     { return "small-tsp" }
func (*TSP) Sense() eda.Sense { return eda.Minimize }

func (p *TSP) Evaluate(_ context.Context, g eda.Genotype) (eda.Fitness, error) {
	tour, ok := g.(eda.Permutation)
	if !ok {
		return nil, kindMismatch(p.Name(), g, eda.KindPermutation)
	}
	n := len(p.Distances)
	if len(tour) != n {
		return nil, fmt.Errorf("%s: expected %d cities, got %d", p.Name(), n, len(tour))
	}
	var length float64
	for i, from := range tour {
		to := tour[(i+1)%n]
		if from < 0 || from >= n || to < 0 || to >= n {
			return nil, fmt.Errorf("%s: city index out of range", p.Name())
		}
		length += p.Distances[from][to]
	}
	return eda.ScalarFitness(length), nil
}
