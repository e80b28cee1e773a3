package telemetry

import (
	"log/slog"

	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/store"
)

// TraceSink appends events to a run's JSONL trace. The buffer is flushed on
// checkpoints and at the end of a run.
type TraceSink struct {
	w *store.TraceWriter
}

// NewTraceSink opens the trace of runID under baseDir. Resumed runs append.
func NewTraceSink(baseDir, runID string, resume bool) (*TraceSink, error) {
	w, err := store.NewTraceWriter(baseDir, runID, resume)
	if err != nil {
		return nil, err
	}
	return &TraceSink{w: w}, nil
}

func (s *TraceSink) Publish(e engine.Event) {
	if err := s.w.Write(e); err != nil {
		slog.Warn("Failed to write trace event", "run_id", e.RunID, "error", err)
		return
	}
	switch e.Type {
	case engine.EventCheckpointSaved, engine.EventRunCompleted, engine.EventRunFailed:
		if err := s.w.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "run_id", e.RunID, "error", err)
		}
	}
}

// Path returns the trace file.
func (s *TraceSink) Path() string { return s.w.Path() }

func (s *TraceSink) Close() error { return s.w.Close() }
