package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/goeda/internal/engine"
)

// ProgressEvent is what stream clients receive.
type ProgressEvent struct {
	RunID string       `json:"runId"`
	State JobState     `json:"state"`
	Event engine.Event `json:"event"`
}

// EventBroadcaster fans progress events out to stream clients per run.
type EventBroadcaster struct {
	mu        sync.RWMutex
	clients   map[string]map[chan ProgressEvent]bool // runID -> set of client channels
	lastEvent map[string]ProgressEvent               // runID -> last event for new clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ProgressEvent]bool),
		lastEvent: make(map[string]ProgressEvent),
	}
}

// Subscribe adds a client to receive events for a run
func (eb *EventBroadcaster) Subscribe(runID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 64) // Buffered to prevent blocking

	if eb.clients[runID] == nil {
		eb.clients[runID] = make(map[chan ProgressEvent]bool)
	}
	eb.clients[runID][ch] = true

	// Replay the last event for reconnecting clients
	if last, ok := eb.lastEvent[runID]; ok {
		select {
		case ch <- last:
		default:
		}
	}

	slog.Debug("Stream client subscribed", "run_id", runID, "total_clients", len(eb.clients[runID]))
	return ch
}

// Unsubscribe removes a client from receiving events
func (eb *EventBroadcaster) Unsubscribe(runID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[runID]; ok {
		if _, ok := clients[ch]; ok {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(eb.clients, runID)
		}
	}

	slog.Debug("Stream client unsubscribed", "run_id", runID)
}

// Broadcast sends an event to all subscribed clients for a run
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.RunID] = event

	clients, ok := eb.clients[event.RunID]
	if !ok || len(clients) == 0 {
		return
	}

	for ch := range clients {
		select {
		case ch <- event:
		default:
			// Channel full, skip this client (prevents blocking)
			slog.Warn("Stream channel full, skipping event", "run_id", event.RunID, "type", event.Event.Type)
		}
	}
}

// CleanupRun removes all clients and cached events for a run
func (eb *EventBroadcaster) CleanupRun(runID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[runID]; ok {
		for ch := range clients {
			close(ch)
		}
		delete(eb.clients, runID)
	}

	delete(eb.lastEvent, runID)
}

// initialEvent describes the job's current state for a new client.
func initialEvent(job *Job) ProgressEvent {
	e := engine.Event{
		Type:        engine.EventIterationCompleted,
		RunID:       job.ID,
		AlgorithmID: job.AlgorithmID,
		Iteration:   job.Iteration,
		Evaluations: job.Evaluations,
		Restarts:    job.Restarts,
		Timestamp:   time.Now().UTC(),
	}
	if job.Best != nil {
		e.Best = *job.Best
	}
	return ProgressEvent{RunID: job.ID, State: job.State, Event: e}
}

// handleRunStream handles SSE connections for run progress
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request, runID string) {
	job, exists := s.jobManager.GetJob(runID)
	if !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventChan := s.jobManager.broadcaster.Subscribe(runID)
	defer s.jobManager.broadcaster.Unsubscribe(runID, eventChan)

	if err := writeSSEEvent(w, initialEvent(job)); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()
	if job.State.Terminal() {
		return
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "run_id", runID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
			if event.State.Terminal() {
				return
			}

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// SSE format: "event: <type>\ndata: {json}\n\n"
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event.Type, data)
	return err
}
