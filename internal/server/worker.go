package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/runner"
	"github.com/cwbudde/goeda/internal/telemetry"
)

// jobPublisher mirrors engine events into the job record and forwards them
// to stream clients. Iteration events are throttled by limiter; lifecycle
// events always go through.
type jobPublisher struct {
	ctx     context.Context
	jm      *JobManager
	id      string
	limiter *rate.Limiter
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (p *jobPublisher) Publish(e engine.Event) {
	var state JobState
	_ = p.jm.UpdateJob(p.id, func(j *Job) {
		switch e.Type {
		case engine.EventRunStarted, engine.EventRunResumed:
			j.State = StateRunning
			j.Resumed = e.Type == engine.EventRunResumed
		case engine.EventCheckpointSaved:
			j.Checkpoint = e.Path
		case engine.EventRunCompleted:
			j.State = StateCompleted
			j.StopReason = e.Message
		case engine.EventRunFailed:
			j.State = StateFailed
			if p.ctx.Err() != nil {
				j.State = StateCancelled
			}
			j.Error = e.Message
		}
		if e.Type != engine.EventRunFailed || e.Iteration > 0 {
			j.Iteration = e.Iteration
			j.Evaluations = e.Evaluations
			j.Restarts = e.Restarts
			if b := finitePtr(e.Best); b != nil && e.Type != engine.EventRunStarted {
				j.Best = b
			}
		}
		if j.State.Terminal() && j.EndTime == nil {
			now := time.Now()
			j.EndTime = &now
		}
		state = j.State
	})

	if e.Type == engine.EventIterationCompleted && !p.limiter.Allow() {
		return
	}
	p.jm.broadcaster.Broadcast(ProgressEvent{RunID: p.id, State: state, Event: e})
}

// runJob executes a run (or resumes it from its checkpoint) in the
// background. The job's final state is set when it returns.
func runJob(ctx context.Context, s *Server, jobID string, resume bool) error {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	pub := &jobPublisher{
		ctx:     ctx,
		jm:      s.jobManager,
		id:      jobID,
		limiter: rate.NewLimiter(rate.Every(s.streamInterval), 1),
	}
	subs := []engine.Publisher{s.logSink, s.metrics, pub}

	var trace *telemetry.TraceSink
	if s.outputDir != "" {
		t, err := telemetry.NewTraceSink(s.outputDir, jobID, resume)
		if err != nil {
			slog.Warn("Event trace disabled", "run_id", jobID, "error", err)
		} else {
			trace = t
			subs = append(subs, trace)
		}
	}
	defer func() {
		if trace != nil {
			if err := trace.Close(); err != nil {
				slog.Warn("Failed to close event trace", "run_id", jobID, "error", err)
			}
		}
	}()

	r := runner.New(runner.Options{
		Registry:  s.registry,
		Store:     s.store,
		Publisher: engine.NewFanout(subs...),
		Evaluator: s.evaluator,
	})

	slog.Info("Starting job", "run_id", jobID, "algorithm", job.AlgorithmID, "resume", resume)

	var (
		res *runner.Result
		err error
	)
	if resume {
		res, err = r.Resume(ctx, jobID, runner.ResumeOptions{})
	} else {
		res, err = r.Run(ctx, job.Config)
	}
	if err != nil {
		markJobFailed(ctx, s.jobManager, jobID, err)
		return err
	}

	_ = s.jobManager.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Iteration = res.Iterations
		j.Evaluations = res.Evaluations
		j.Restarts = res.Restarts
		j.Best = finitePtr(res.BestValue())
		j.BestSummary = res.BestSummary
		j.StopReason = res.StopReason
		j.Checkpoint = res.Checkpoint
		j.Resumed = res.Resumed
		if j.EndTime == nil {
			now := time.Now()
			j.EndTime = &now
		}
	})

	slog.Info("Job completed",
		"run_id", jobID,
		"iterations", res.Iterations,
		"evaluations", res.Evaluations,
		"best", res.BestValue(),
		"elapsed", res.Elapsed,
	)
	return nil
}

// markJobFailed records err unless the runner already did. Errors raised
// before the run started (configuration, resume) have no event, so the
// stream clients are told here.
func markJobFailed(ctx context.Context, jm *JobManager, jobID string, err error) {
	state := StateFailed
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		state = StateCancelled
	}

	var job Job
	_ = jm.UpdateJob(jobID, func(j *Job) {
		notified := j.State.Terminal()
		j.State = state
		j.Error = err.Error()
		if j.EndTime == nil {
			now := time.Now()
			j.EndTime = &now
		}
		job = *j
		if notified {
			job.State = ""
		}
	})

	if state == StateCancelled {
		slog.Info("Job cancelled", "run_id", jobID)
	} else {
		slog.Error("Job failed", "run_id", jobID, "error", err)
	}

	if job.State == "" {
		return
	}
	jm.broadcaster.Broadcast(ProgressEvent{
		RunID: jobID,
		State: state,
		Event: engine.Event{
			Type:        engine.EventRunFailed,
			RunID:       jobID,
			AlgorithmID: job.AlgorithmID,
			Iteration:   job.Iteration,
			Evaluations: job.Evaluations,
			Message:     err.Error(),
			Timestamp:   time.Now().UTC(),
		},
	})
}
