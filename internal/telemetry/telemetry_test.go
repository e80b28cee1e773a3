package telemetry

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/store"
)

func runEvents(runID string) []engine.Event {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []engine.Event{
		{Type: engine.EventRunStarted, RunID: runID, AlgorithmID: "umda", Timestamp: t0},
		{Type: engine.EventIterationCompleted, RunID: runID, AlgorithmID: "umda", Iteration: 1, Evaluations: 20, Best: 5, Mean: 3, Timestamp: t0.Add(10 * time.Millisecond)},
		{Type: engine.EventIterationCompleted, RunID: runID, AlgorithmID: "umda", Iteration: 2, Evaluations: 30, Best: 7, Mean: 4, Restarts: 1, Timestamp: t0.Add(30 * time.Millisecond)},
		{Type: engine.EventCheckpointSaved, RunID: runID, AlgorithmID: "umda", Iteration: 2, Evaluations: 30, Path: "cp", Timestamp: t0.Add(31 * time.Millisecond)},
		{Type: engine.EventRunCompleted, RunID: runID, AlgorithmID: "umda", Iteration: 2, Evaluations: 30, Best: 7, Message: "max iterations", Timestamp: t0.Add(32 * time.Millisecond)},
	}
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	for _, e := range runEvents("r1") {
		m.Publish(e)
	}

	assert.Len(t, m.Events(), 5)
	assert.Len(t, m.OfType(engine.EventIterationCompleted), 2)
	assert.Equal(t, []engine.EventType{
		engine.EventRunStarted,
		engine.EventIterationCompleted,
		engine.EventIterationCompleted,
		engine.EventCheckpointSaved,
		engine.EventRunCompleted,
	}, m.Types())

	events := m.Events()
	events[0].RunID = "mutated"
	assert.Equal(t, "r1", m.Events()[0].RunID)
}

func TestLogSink_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewLogSink(logger, 10)

	for _, e := range runEvents("r1") {
		sink.Publish(e)
	}
	out := buf.String()

	assert.Contains(t, out, "Run started")
	assert.Contains(t, out, "Checkpoint saved")
	assert.Contains(t, out, "Run completed")
	// iteration 1 is logged at info, iteration 2 only at debug
	assert.Equal(t, 1, strings.Count(out, "Iteration completed"))

	buf.Reset()
	sink.Publish(engine.Event{Type: engine.EventRunFailed, RunID: "r1", Message: "boom"})
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "boom")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	for _, e := range runEvents("r1") {
		m.Publish(e)
	}

	assert.Equal(t, 7.0, testutil.ToFloat64(m.best.WithLabelValues("r1", "umda")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.iteration.WithLabelValues("r1", "umda")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.evaluations.WithLabelValues("r1", "umda")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restarts.WithLabelValues("r1", "umda")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues(string(engine.EventIterationCompleted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("umda", "completed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.runs.WithLabelValues("umda", "failed")))

	count, err := testutil.GatherAndCount(reg, "goeda_engine_iteration_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	m.mu.Lock()
	assert.Empty(t, m.last)
	m.mu.Unlock()
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestTraceSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewTraceSink(dir, "r1", false)
	require.NoError(t, err)
	assert.Equal(t, store.TracePath(dir, "r1"), sink.Path())

	events := runEvents("r1")
	for _, e := range events[:4] {
		sink.Publish(e)
	}

	// flushed on checkpoint
	r, err := store.NewTraceReader(dir, "r1")
	require.NoError(t, err)
	got, err := r.ReadAll()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Len(t, got, 4)

	sink.Publish(events[4])
	require.NoError(t, sink.Close())

	r, err = store.NewTraceReader(dir, "r1")
	require.NoError(t, err)
	defer r.Close()
	got, err = r.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, engine.EventRunCompleted, got[4].Type)
	assert.Equal(t, 7.0, got[4].Best)
}

func TestTraceSink_NonFiniteBest(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewTraceSink(dir, "r1", false)
	require.NoError(t, err)

	sink.Publish(engine.Event{Type: engine.EventIterationCompleted, RunID: "r1", Iteration: 1, Best: math.Inf(-1)})
	require.NoError(t, sink.Close())

	r, err := store.NewTraceReader(dir, "r1")
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Iteration)
}

type closer struct {
	engine.PublisherFunc
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

func TestCloseAll(t *testing.T) {
	a := &closer{PublisherFunc: func(engine.Event) {}}
	b := &closer{PublisherFunc: func(engine.Event) {}, err: errors.New("disk full")}

	err := CloseAll(a, NewMemory(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
