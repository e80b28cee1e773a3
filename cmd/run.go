package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/runner"
	"github.com/cwbudde/goeda/internal/store"
	"github.com/cwbudde/goeda/internal/telemetry"
)

// sinkFlags select optional event consumers shared by run and resume.
type sinkFlags struct {
	sqlitePath  string
	metricsAddr string
	logEvery    int
	noTrace     bool
}

func (f *sinkFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite", "", "Record events into this SQLite database (requires -tags sqlite)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	cmd.Flags().IntVar(&f.logEvery, "log-every", 10, "Log every Nth iteration at info level")
	cmd.Flags().BoolVar(&f.noTrace, "no-trace", false, "Do not write the JSONL event trace")
}

var (
	runConfigPath      string
	runSeed            uint64
	runID              string
	runOutputDir       string
	runStoreKind       string
	runWorkers         int
	runCheckpointEvery int
	runSinks           sinkFlags
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization from a configuration file",
	Long: `Runs the algorithm described by a YAML configuration file until its stopping
condition holds. Checkpoints are written to the configured store and can be
continued with the resume command. Interrupting the run leaves the last
checkpoint in place.`,
	RunE: runOptimization,
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Configuration file (required)")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 0, "Override the configured seed")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run id (default: configured id or a new UUID)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Override the output directory")
	runCmd.Flags().StringVar(&runStoreKind, "store", "", "Override the checkpoint store (fs, badger)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Override the number of evaluation workers")
	runCmd.Flags().IntVar(&runCheckpointEvery, "checkpoint-every", 0, "Override the checkpoint interval")
	runSinks.register(runCmd)

	runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = runSeed
	}
	if runID != "" {
		cfg.RunID = runID
	}
	if runOutputDir != "" {
		cfg.Run.OutputDir = runOutputDir
	}
	if runStoreKind != "" {
		cfg.Run.Store = runStoreKind
	}
	if flags.Changed("workers") {
		cfg.Run.Workers = runWorkers
	}
	if flags.Changed("checkpoint-every") {
		cfg.Run.CheckpointEvery = runCheckpointEvery
	}
	if cfg.RunID == "" {
		// the trace file is named after the run, so the id is fixed here
		cfg.RunID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := openSession(ctx, cfg.Run, cfg.RunID, false, runSinks)
	if err != nil {
		return err
	}
	defer sess.close()

	slog.Info("Starting optimization",
		"run_id", cfg.RunID,
		"algorithm", cfg.Algorithm,
		"problem", cfg.Problem.Type,
		"population", cfg.PopulationSize,
		"seed", cfg.Seed)

	res, err := sess.runner.Run(ctx, cfg)
	if err != nil {
		return explainInterrupt(ctx, cfg.RunID, err)
	}
	printResult(cmd.OutOrStdout(), res, sess.trace)
	return nil
}

// session is the store and sinks of one CLI run.
type session struct {
	runner  *runner.Runner
	store   store.Store
	sinks   []engine.Publisher
	trace   string
	metrics *http.Server
}

func openSession(ctx context.Context, run config.Run, id string, resume bool, f sinkFlags) (*session, error) {
	st, err := store.Open(run)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s := &session{store: st}

	s.sinks = append(s.sinks, telemetry.NewLogSink(slog.Default(), f.logEvery))
	if !f.noTrace {
		ts, err := telemetry.NewTraceSink(run.OutputDir, id, resume)
		if err != nil {
			s.close()
			return nil, err
		}
		s.sinks = append(s.sinks, ts)
		s.trace = ts.Path()
	}
	if f.sqlitePath != "" {
		sq, err := telemetry.OpenSQLiteSink(ctx, f.sqlitePath)
		if err != nil {
			s.close()
			return nil, err
		}
		s.sinks = append(s.sinks, sq)
	}
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		s.sinks = append(s.sinks, telemetry.NewMetrics(reg))
		if err := s.serveMetrics(f.metricsAddr, reg); err != nil {
			s.close()
			return nil, err
		}
	}

	s.runner = runner.New(runner.Options{
		Store:     st,
		Publisher: engine.NewFanout(s.sinks...),
		Logger:    slog.Default(),
	})
	return s, nil
}

func (s *session) serveMetrics(addr string, reg *prometheus.Registry) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	s.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Serving metrics", "addr", ln.Addr().String())
	return nil
}

func (s *session) close() {
	if s.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.metrics.Shutdown(ctx)
		cancel()
	}
	if err := telemetry.CloseAll(s.sinks...); err != nil {
		slog.Warn("Failed to close event sinks", "error", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}
}

func explainInterrupt(ctx context.Context, id string, err error) error {
	if ctx.Err() != nil {
		slog.Warn("Run interrupted; continue with the resume command", "run_id", id)
	}
	return err
}

func printResult(w io.Writer, res *runner.Result, trace string) {
	fmt.Fprintf(w, "Run:         %s\n", res.RunID)
	fmt.Fprintf(w, "Algorithm:   %s\n", res.AlgorithmID)
	if res.Resumed {
		fmt.Fprintln(w, "Resumed:     yes")
	}
	fmt.Fprintf(w, "Stopped:     %s\n", res.StopReason)
	fmt.Fprintf(w, "Iterations:  %s\n", humanize.Comma(int64(res.Iterations)))
	fmt.Fprintf(w, "Evaluations: %s\n", humanize.Comma(res.Evaluations))
	if res.Restarts > 0 {
		fmt.Fprintf(w, "Restarts:    %d\n", res.Restarts)
	}
	fmt.Fprintf(w, "Best:        %g\n", res.BestValue())
	fmt.Fprintf(w, "Solution:    %s\n", res.BestSummary)
	fmt.Fprintf(w, "Elapsed:     %s\n", res.Elapsed.Round(time.Millisecond))
	if res.Checkpoint != "" {
		fmt.Fprintf(w, "Checkpoint:  %s\n", res.Checkpoint)
	}
	if trace != "" {
		fmt.Fprintf(w, "Trace:       %s\n", trace)
	}
}
