package policy

import (
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/rng"
)

// DefaultRejectionRetries bounds the re-randomizations per candidate.
const DefaultRejectionRetries = 20

// Identity makes candidates valid through representation repair only.
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) Enforce(candidate eda.Genotype, rep eda.Representation, _ eda.Problem, _ *rng.Stream) eda.Genotype {
	if rep.IsValid(candidate) {
		return candidate
	}
	return rep.Repair(candidate)
}

// Rejection re-draws infeasible candidates from the representation, at most
// MaxRetries times, then falls back to the repaired original.
type Rejection struct {
	MaxRetries int
}

// NewRejection creates the policy; a non-positive budget uses the default.
func NewRejection(maxRetries int) Rejection {
	if maxRetries <= 0 {
		maxRetries = DefaultRejectionRetries
	}
	return Rejection{MaxRetries: maxRetries}
}

func (Rejection) Name() string { return "rejection" }

func (c Rejection) Enforce(candidate eda.Genotype, rep eda.Representation, p eda.Problem, r *rng.Stream) eda.Genotype {
	repaired := Identity{}.Enforce(candidate, rep, p, r)
	checker, ok := p.(eda.FeasibilityChecker)
	if !ok || checker.Feasible(repaired) {
		return repaired
	}
	for i := 0; i < c.MaxRetries; i++ {
		retry := rep.Random(r)
		if checker.Feasible(retry) {
			return retry
		}
	}
	return repaired
}
