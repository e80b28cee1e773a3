package engine

import (
	"encoding/json"
	"math"
	"sync"
	"time"
)

// EventType identifies a telemetry event.
type EventType string

const (
	EventRunStarted         EventType = "run-started"
	EventIterationCompleted EventType = "iteration-completed"
	EventCheckpointSaved    EventType = "checkpoint-saved"
	EventRunCompleted       EventType = "run-completed"
	EventRunFailed          EventType = "run-failed"
	EventRunResumed         EventType = "run-resumed"
)

// Event is a telemetry record produced by the engine and the runner.
type Event struct {
	Type        EventType          `json:"type"`
	RunID       string             `json:"runId"`
	AlgorithmID string             `json:"algorithmId,omitempty"`
	Iteration   int                `json:"iteration"`
	Evaluations int64              `json:"evaluations"`
	Best        float64            `json:"best"`
	Mean        float64            `json:"mean"`
	Std         float64            `json:"std"`
	Restarts    int                `json:"restarts,omitempty"`
	Diagnostics map[string]float64 `json:"diagnostics,omitempty"`
	Message     string             `json:"message,omitempty"`
	Path        string             `json:"path,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// MarshalJSON leaves out non-finite statistics and diagnostics, which JSON
// cannot represent.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	w := struct {
		plain
		Best        *float64           `json:"best,omitempty"`
		Mean        *float64           `json:"mean,omitempty"`
		Std         *float64           `json:"std,omitempty"`
		Diagnostics map[string]float64 `json:"diagnostics,omitempty"`
	}{plain: plain(e), Best: finite(e.Best), Mean: finite(e.Mean), Std: finite(e.Std)}
	for k, v := range e.Diagnostics {
		if finite(v) == nil {
			continue
		}
		if w.Diagnostics == nil {
			w.Diagnostics = make(map[string]float64, len(e.Diagnostics))
		}
		w.Diagnostics[k] = v
	}
	return json.Marshal(w)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Publisher receives events. Implementations must not block for long; the
// engine publishes on its iterating goroutine.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish calls f.
func (f PublisherFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})

// Fanout forwards events to every subscribed publisher in subscription
// order.
type Fanout struct {
	mu   sync.RWMutex
	subs []Publisher
}

// NewFanout creates a fan-out over the given publishers.
func NewFanout(subs ...Publisher) *Fanout {
	return &Fanout{subs: append([]Publisher(nil), subs...)}
}

// Subscribe adds a publisher.
func (f *Fanout) Subscribe(p Publisher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, p)
}

// Publish forwards e to all subscribers.
func (f *Fanout) Publish(e Event) {
	f.mu.RLock()
	subs := f.subs
	f.mu.RUnlock()

	for _, s := range subs {
		s.Publish(e)
	}
}
