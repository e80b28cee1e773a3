package telemetry

import (
	"context"
	"log/slog"

	"github.com/cwbudde/goeda/internal/engine"
)

// LogSink writes events as structured log lines. Iteration events are
// logged at info level every Every iterations and at debug level otherwise.
type LogSink struct {
	logger *slog.Logger
	every  int
}

// NewLogSink creates a sink; a nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger, every int) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, every: max(1, every)}
}

func (s *LogSink) Publish(e engine.Event) {
	attrs := []any{"run_id", e.RunID, "iteration", e.Iteration, "evaluations", e.Evaluations}

	switch e.Type {
	case engine.EventRunStarted:
		s.logger.Info("Run started", append(attrs, "algorithm", e.AlgorithmID)...)
	case engine.EventRunResumed:
		s.logger.Info("Run resumed", append(attrs, "algorithm", e.AlgorithmID, "path", e.Path)...)
	case engine.EventIterationCompleted:
		level := slog.LevelDebug
		if e.Iteration == 1 || e.Iteration%s.every == 0 {
			level = slog.LevelInfo
		}
		attrs = append(attrs, "best", e.Best, "mean", e.Mean, "std", e.Std)
		if e.Restarts > 0 {
			attrs = append(attrs, "restarts", e.Restarts)
		}
		s.logger.Log(context.Background(), level, "Iteration completed", attrs...)
	case engine.EventCheckpointSaved:
		s.logger.Info("Checkpoint saved", append(attrs, "path", e.Path)...)
	case engine.EventRunCompleted:
		s.logger.Info("Run completed", append(attrs, "best", e.Best, "reason", e.Message)...)
	case engine.EventRunFailed:
		s.logger.Error("Run failed", append(attrs, "error", e.Message)...)
	default:
		s.logger.Debug("Event", append(attrs, "type", e.Type)...)
	}
}
