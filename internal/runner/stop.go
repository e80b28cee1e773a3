package runner

import (
	"math"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
)

// Stop reasons reported in run-completed events.
const (
	ReasonMaxIterations  = "max-iterations"
	ReasonMaxEvaluations = "max-evaluations"
	ReasonTarget         = "target-reached"
	ReasonStagnation     = "stagnation"
	ReasonStopped        = "stopped"
)

// StopReason names the first stopping criterion satisfied by st.
func StopReason(s config.Stopping, st *eda.AlgorithmState) string {
	if st == nil {
		return ReasonStopped
	}
	if s.Target != nil && st.HasBest {
		best := st.BestValue()
		sense := eda.Minimize
		if st.Population != nil {
			sense = st.Population.Sense()
		}
		if !math.IsNaN(best) && !math.IsInf(best, 0) {
			if (sense == eda.Maximize && best >= *s.Target) || (sense == eda.Minimize && best <= *s.Target) {
				return ReasonTarget
			}
		}
	}
	switch {
	case s.MaxIterations > 0 && int64(st.Iteration) >= s.MaxIterations:
		return ReasonMaxIterations
	case s.MaxEvaluations > 0 && st.Evaluations >= s.MaxEvaluations:
		return ReasonMaxEvaluations
	case s.Patience > 0 && st.Iteration-st.LastImprovement >= s.Patience:
		return ReasonStagnation
	}
	return ReasonStopped
}
