package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/server"
	"github.com/cwbudde/goeda/internal/store"
)

var (
	serveAddr           string
	serveDataDir        string
	serveStoreKind      string
	serveWorkers        int
	serveStreamInterval time.Duration
	serveShutdownGrace  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts an HTTP server that accepts run configurations as JSON, executes them
in the background and streams their progress over SSE or websockets.
Prometheus metrics are exposed at /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for checkpoints and traces")
	serveCmd.Flags().StringVar(&serveStoreKind, "store", config.StoreFS, "Checkpoint store (fs, badger)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Concurrent evaluations across all runs (0 = GOMAXPROCS)")
	serveCmd.Flags().DurationVar(&serveStreamInterval, "stream-interval", 250*time.Millisecond, "Minimum gap between streamed iteration events")
	serveCmd.Flags().DurationVar(&serveShutdownGrace, "shutdown-grace", 10*time.Second, "Time allowed for runs to checkpoint on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := store.Open(config.Run{OutputDir: serveDataDir, Store: serveStoreKind})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	srv := server.NewServer(serveAddr, server.Options{
		Store:          st,
		OutputDir:      serveDataDir,
		Workers:        serveWorkers,
		StreamInterval: serveStreamInterval,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Signal received, shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
