package telemetry

import (
	"sync"

	"github.com/cwbudde/goeda/internal/engine"
)

// Memory keeps every event in memory.
type Memory struct {
	mu     sync.RWMutex
	events []engine.Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Publish(e engine.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []engine.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.Event(nil), m.events...)
}

// OfType returns the recorded events of type t.
func (m *Memory) OfType(t engine.EventType) []engine.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Types returns the event types in order.
func (m *Memory) Types() []engine.EventType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
