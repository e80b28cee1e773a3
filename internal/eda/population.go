package eda

import "sort"

// Individual pairs an evaluated genotype with its fitness.
type Individual struct {
	Genotype Genotype
	Fitness  Fitness
}

// NewIndividual creates an evaluated individual.
func NewIndividual(g Genotype, f Fitness) Individual {
	return Individual{Genotype: g, Fitness: f}
}

// Value is shorthand for the scalar fitness.
func (i Individual) Value() float64 {
	return i.Fitness.Scalar()
}

// Population is an ordered collection of individuals ranked under one
// objective sense.
type Population struct {
	sense   Sense
	members []Individual
}

// NewPopulation creates an empty population.
func NewPopulation(sense Sense, members ...Individual) *Population {
	p := &Population{sense: sense}
	p.members = append(p.members, members...)
	return p
}

// Sense returns the objective sense.
func (p *Population) Sense() Sense { return p.sense }

// Len returns the number of individuals.
func (p *Population) Len() int { return len(p.members) }

// At returns the i-th individual.
func (p *Population) At(i int) Individual { return p.members[i] }

// Add appends individuals.
func (p *Population) Add(members ...Individual) {
	p.members = append(p.members, members...)
}

// RemoveAt removes the i-th individual, keeping the order of the rest.
func (p *Population) RemoveAt(i int) {
	p.members = append(p.members[:i], p.members[i+1:]...)
}

// Set replaces the i-th individual.
func (p *Population) Set(i int, ind Individual) {
	p.members[i] = ind
}

// Truncate keeps the first n individuals.
func (p *Population) Truncate(n int) {
	if n < len(p.members) {
		p.members = p.members[:n]
	}
}

// Clear removes all individuals.
func (p *Population) Clear() {
	p.members = p.members[:0]
}

// Sort orders the population best first. Equal fitness keeps the existing
// relative order.
func (p *Population) Sort() {
	sort.SliceStable(p.members, func(i, j int) bool {
		return p.sense.Better(p.members[i].Value(), p.members[j].Value())
	})
}

// Best returns the best individual; the first one wins ties.
func (p *Population) Best() (Individual, bool) {
	if len(p.members) == 0 {
		return Individual{}, false
	}
	best := p.members[0]
	for _, ind := range p.members[1:] {
		if p.sense.Better(ind.Value(), best.Value()) {
			best = ind
		}
	}
	return best, true
}

// WorstIndex returns the index of the worst individual; the last one wins
// ties.
func (p *Population) WorstIndex() int {
	if len(p.members) == 0 {
		return -1
	}
	worst := 0
	for i := 1; i < len(p.members); i++ {
		if !p.sense.Better(p.members[i].Value(), p.members[worst].Value()) {
			worst = i
		}
	}
	return worst
}

// Worst returns the worst individual.
func (p *Population) Worst() (Individual, bool) {
	i := p.WorstIndex()
	if i < 0 {
		return Individual{}, false
	}
	return p.members[i], true
}

// Individuals returns a copy of the members.
func (p *Population) Individuals() []Individual {
	return append([]Individual(nil), p.members...)
}

// Values returns the scalar fitness of every member in order.
func (p *Population) Values() []float64 {
	out := make([]float64, len(p.members))
	for i, ind := range p.members {
		out[i] = ind.Value()
	}
	return out
}

// Clone returns a shallow copy; genotypes are immutable and shared.
func (p *Population) Clone() *Population {
	return NewPopulation(p.sense, p.members...)
}

// Sorted returns a sorted copy.
func (p *Population) Sorted() *Population {
	c := p.Clone()
	c.Sort()
	return c
}
