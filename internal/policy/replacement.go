package policy

import "github.com/cwbudde/goeda/internal/eda"

// Elitist keeps the top elitism individuals of the current population,
// appends the offspring and truncates back to the current size. Elites
// precede offspring of equal fitness.
type Elitist struct{}

func (Elitist) Name() string { return "elitist" }

func (Elitist) Replace(current *eda.Population, offspring []eda.Individual, elitism int) *eda.Population {
	size := current.Len()
	if size == 0 {
		size = len(offspring)
	}
	elitism = max(0, min(elitism, current.Len()))

	next := eda.NewPopulation(current.Sense())
	if elitism > 0 {
		elites := current.Sorted()
		elites.Truncate(elitism)
		next.Add(elites.Individuals()...)
	}
	next.Add(offspring...)
	next.Sort()
	next.Truncate(size)
	return next
}
