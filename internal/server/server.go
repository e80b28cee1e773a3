// Package server exposes the runner over HTTP: runs are created, resumed
// and cancelled through a JSON API and their progress is streamed over SSE
// or websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/registry"
	"github.com/cwbudde/goeda/internal/store"
	"github.com/cwbudde/goeda/internal/telemetry"
)

// Options configures a Server.
type Options struct {
	// Store holds checkpoints; nil disables checkpointing and resume.
	Store store.Store
	// OutputDir receives per-run event traces; empty disables them.
	OutputDir string
	// Workers bounds concurrent fitness evaluations across all runs.
	Workers int
	// StreamInterval is the minimum gap between streamed iteration events.
	StreamInterval time.Duration
	Registry       *registry.Registry
	// Metrics receives the server's collectors; nil creates a registry.
	Metrics *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	jobManager     *JobManager
	addr           string
	server         *http.Server
	store          store.Store
	outputDir      string
	registry       *registry.Registry
	evaluator      engine.Evaluator
	streamInterval time.Duration
	promRegistry   *prometheus.Registry
	metrics        *telemetry.Metrics
	logSink        *telemetry.LogSink
	wg             sync.WaitGroup
}

// NewServer creates a new HTTP server
func NewServer(addr string, opts Options) *Server {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 250 * time.Millisecond
	}
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = prometheus.NewRegistry()
		opts.Metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return &Server{
		jobManager:     NewJobManager(),
		addr:           addr,
		store:          opts.Store,
		outputDir:      opts.OutputDir,
		registry:       opts.Registry,
		evaluator:      engine.NewSharedEvaluator(semaphore.NewWeighted(int64(workers))),
		streamInterval: opts.StreamInterval,
		promRegistry:   opts.Metrics,
		metrics:        telemetry.NewMetrics(opts.Metrics),
		logSink:        telemetry.NewLogSink(slog.Default(), 10),
	}
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/", s.handleRunsWithID)
	mux.HandleFunc("/api/v1/checkpoints", s.handleCheckpoints)
	mux.HandleFunc("/api/v1/components", s.handleComponents)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown cancels active runs, waits for them to record their state and
// stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.jobManager.CancelAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Timed out waiting for runs to stop")
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// start launches the job in the background.
func (s *Server) start(jobID string, resume bool) {
	ctx, cancel := context.WithCancel(context.Background())
	_ = s.jobManager.UpdateJob(jobID, func(j *Job) { j.cancel = cancel })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		_ = runJob(ctx, s, jobID, resume)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": len(s.jobManager.GetRunningJobs()),
	})
}

// handleRuns handles /api/v1/runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRunsWithID handles /api/v1/runs/:id/*
func (s *Server) handleRunsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Run ID required", http.StatusBadRequest)
		return
	}

	runID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case (action == "" || action == "status") && r.Method == http.MethodGet:
		s.handleGetRunStatus(w, r, runID)
	case action == "stream" && r.Method == http.MethodGet:
		s.handleRunStream(w, r, runID)
	case action == "ws" && r.Method == http.MethodGet:
		s.handleRunWebSocket(w, r, runID)
	case action == "cancel" && r.Method == http.MethodPost:
		s.handleCancelRun(w, r, runID)
	case action == "resume" && r.Method == http.MethodPost:
		s.handleResumeRun(w, r, runID)
	case action == "" || action == "status" || action == "stream" || action == "ws" || action == "cancel" || action == "resume":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateRun handles POST /api/v1/runs. The body is a configuration
// document; omitted fields take their defaults.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	cfg := config.Default()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if _, err := s.registry.Build(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.jobManager.CreateJob(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	s.start(job.ID, false)

	writeJSON(w, http.StatusCreated, job)
}

// handleListRuns handles GET /api/v1/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetRunStatus handles GET /api/v1/runs/:id/status
func (s *Server) handleGetRunStatus(w http.ResponseWriter, r *http.Request, runID string) {
	job, exists := s.jobManager.GetJob(runID)
	if !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	evalsPerSec := 0.0
	if elapsed.Seconds() > 0 {
		evalsPerSec = float64(job.Evaluations) / elapsed.Seconds()
	}

	writeJSON(w, http.StatusOK, struct {
		*Job
		Elapsed     float64 `json:"elapsed"`
		EvalsPerSec float64 `json:"evalsPerSec"`
	}{job, elapsed.Seconds(), evalsPerSec})
}

// handleCancelRun handles POST /api/v1/runs/:id/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request, runID string) {
	if _, exists := s.jobManager.GetJob(runID); !exists {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err := s.jobManager.CancelJob(runID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleResumeRun handles POST /api/v1/runs/:id/resume
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request, runID string) {
	if s.store == nil {
		http.Error(w, "Checkpointing is disabled", http.StatusServiceUnavailable)
		return
	}
	cp, err := s.store.LoadCheckpoint(runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Checkpoint not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cfg, err := cp.Config.Clone()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	cfg.RunID = cp.RunID
	job, err := s.jobManager.CreateJob(cfg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	_ = s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.Iteration = cp.Iteration
		j.Evaluations = cp.Evaluations
		j.Restarts = cp.Restarts
		j.Best = finitePtr(cp.BestFitness())
		j.Checkpoint = store.Location(s.store, cp.RunID)
	})
	s.start(job.ID, true)

	job, _ = s.jobManager.GetJob(job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// handleCheckpoints handles GET /api/v1/checkpoints
func (s *Server) handleCheckpoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.CheckpointInfo{})
		return
	}
	infos, err := s.store.ListCheckpoints()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleComponents handles GET /api/v1/components
func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := make(map[string][]string)
	for _, k := range registry.Kinds() {
		out[string(k)] = s.registry.List(k)
	}
	writeJSON(w, http.StatusOK, out)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
