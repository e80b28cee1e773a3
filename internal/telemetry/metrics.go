package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cwbudde/goeda/internal/engine"
)

// Metrics exports run progress as Prometheus metrics.
type Metrics struct {
	best              *prometheus.GaugeVec
	iteration         *prometheus.GaugeVec
	evaluations       *prometheus.GaugeVec
	restarts          *prometheus.GaugeVec
	iterationDuration *prometheus.HistogramVec
	events            *prometheus.CounterVec
	runs              *prometheus.CounterVec

	mu   sync.Mutex
	last map[string]time.Time
}

// NewMetrics registers the collectors with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		best: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "goeda",
			Subsystem: "run",
			Name:      "best_fitness",
			Help:      "Best fitness found so far",
		}, []string{"run_id", "algorithm"}),
		iteration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "goeda",
			Subsystem: "run",
			Name:      "iteration",
			Help:      "Last completed iteration",
		}, []string{"run_id", "algorithm"}),
		evaluations: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "goeda",
			Subsystem: "run",
			Name:      "evaluations",
			Help:      "Fitness evaluations spent",
		}, []string{"run_id", "algorithm"}),
		restarts: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "goeda",
			Subsystem: "run",
			Name:      "restarts",
			Help:      "Engine-level restarts",
		}, []string{"run_id", "algorithm"}),
		iterationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "goeda",
			Subsystem: "engine",
			Name:      "iteration_duration_seconds",
			Help:      "Wall time between consecutive iteration events",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"algorithm"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goeda",
			Name:      "events_total",
			Help:      "Telemetry events by type",
		}, []string{"type"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "goeda",
			Name:      "runs_finished_total",
			Help:      "Finished runs by outcome",
		}, []string{"algorithm", "outcome"}),
		last: make(map[string]time.Time),
	}
}

func (m *Metrics) Publish(e engine.Event) {
	m.events.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case engine.EventRunStarted, engine.EventRunResumed:
		m.mu.Lock()
		m.last[e.RunID] = e.Timestamp
		m.mu.Unlock()
	case engine.EventIterationCompleted:
		m.best.WithLabelValues(e.RunID, e.AlgorithmID).Set(e.Best)
		m.iteration.WithLabelValues(e.RunID, e.AlgorithmID).Set(float64(e.Iteration))
		m.evaluations.WithLabelValues(e.RunID, e.AlgorithmID).Set(float64(e.Evaluations))
		m.restarts.WithLabelValues(e.RunID, e.AlgorithmID).Set(float64(e.Restarts))

		m.mu.Lock()
		prev, ok := m.last[e.RunID]
		m.last[e.RunID] = e.Timestamp
		m.mu.Unlock()
		if ok && !prev.IsZero() && e.Timestamp.After(prev) {
			m.iterationDuration.WithLabelValues(e.AlgorithmID).Observe(e.Timestamp.Sub(prev).Seconds())
		}
	case engine.EventRunCompleted:
		m.runs.WithLabelValues(e.AlgorithmID, "completed").Inc()
		m.forget(e.RunID)
	case engine.EventRunFailed:
		m.runs.WithLabelValues(e.AlgorithmID, "failed").Inc()
		m.forget(e.RunID)
	}
}

func (m *Metrics) forget(runID string) {
	m.mu.Lock()
	delete(m.last, runID)
	m.mu.Unlock()
}
