// Package runner drives EDA runs: it builds the component graph from a
// configuration, iterates until a stopping condition fires, checkpoints
// periodically and publishes the run lifecycle events.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/goeda/internal/config"
	"github.com/cwbudde/goeda/internal/eda"
	"github.com/cwbudde/goeda/internal/engine"
	"github.com/cwbudde/goeda/internal/registry"
	"github.com/cwbudde/goeda/internal/rng"
	"github.com/cwbudde/goeda/internal/store"
)

// Options configures a Runner. Every field is optional.
type Options struct {
	// Registry resolves component type ids; nil uses registry.Default().
	Registry *registry.Registry
	// Store receives checkpoints; nil disables checkpointing.
	Store store.Store
	// Publisher receives engine and lifecycle events.
	Publisher engine.Publisher
	// Evaluator overrides the per-run parallel evaluator. The runner never
	// shuts down an evaluator it did not create.
	Evaluator engine.Evaluator
	Logger    *slog.Logger
}

// Runner executes runs. A Runner may execute several runs concurrently;
// each run owns its own engine and RNG streams.
type Runner struct {
	reg    *registry.Registry
	store  store.Store
	pub    engine.Publisher
	eval   engine.Evaluator
	logger *slog.Logger
	now    func() time.Time
}

// New creates a runner.
func New(opts Options) *Runner {
	r := &Runner{
		reg:    opts.Registry,
		store:  opts.Store,
		pub:    opts.Publisher,
		eval:   opts.Evaluator,
		logger: opts.Logger,
		now:    time.Now,
	}
	if r.reg == nil {
		r.reg = registry.Default()
	}
	if r.pub == nil {
		r.pub = engine.Discard
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Result is the outcome of a completed run.
type Result struct {
	RunID       string
	AlgorithmID string
	Iterations  int
	Evaluations int64
	Restarts    int
	Best        eda.Individual
	// BestSummary is the representation's short rendering of Best.
	BestSummary string
	StopReason  string
	// Checkpoint is the location of the last checkpoint written, if any.
	Checkpoint string
	Resumed    bool
	Elapsed    time.Duration
}

// BestValue returns the scalar fitness of the best individual.
func (r *Result) BestValue() float64 {
	if r.Best.Fitness == nil {
		return 0
	}
	return r.Best.Value()
}

// execution is one run in flight.
type execution struct {
	cfg     *config.Config
	graph   *registry.Graph
	alg     *engine.Algorithm
	resumed bool
	// lastSaved is the iteration of the newest checkpoint, -1 before any.
	lastSaved  int
	checkpoint string
}

// Run starts a fresh run of cfg. A missing run id is generated.
// Configuration errors are returned before any event is published.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	cfg, err := cfg.Clone()
	if err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}

	x, err := r.prepare(cfg)
	if err != nil {
		return nil, err
	}

	start := r.now()
	r.publish(engine.Event{
		Type:        engine.EventRunStarted,
		RunID:       cfg.RunID,
		AlgorithmID: x.graph.Options.AlgorithmID,
	})

	if err := x.alg.Initialize(ctx); err != nil {
		return nil, r.fail(x, fmt.Errorf("initialize: %w", err))
	}
	return r.drive(ctx, x, start)
}

// ResumeOptions selects what to resume.
type ResumeOptions struct {
	// Iteration picks a stored iteration copy; 0 resumes the latest
	// checkpoint.
	Iteration int
	// Config replaces the configuration stored in the checkpoint. Only the
	// run section may differ; anything else fails with a ResumeError.
	Config *config.Config
}

// Resume continues runID from its checkpoint. The resumed run produces the
// same trajectory as if it had never been interrupted.
func (r *Runner) Resume(ctx context.Context, runID string, opts ResumeOptions) (*Result, error) {
	if r.store == nil {
		return nil, &eda.ResumeError{Field: "store", Reason: "no checkpoint store configured"}
	}

	var (
		cp  *store.Checkpoint
		err error
	)
	if opts.Iteration > 0 {
		cp, err = r.store.LoadCheckpointAt(runID, opts.Iteration)
	} else {
		cp, err = r.store.LoadCheckpoint(runID)
	}
	if err != nil {
		return nil, &eda.ResumeError{Field: "checkpoint", Reason: "cannot load " + runID, Err: err}
	}
	if err := cp.Validate(); err != nil {
		return nil, &eda.ResumeError{Field: "checkpoint", Reason: "is malformed", Err: err}
	}

	cfg := cp.Config
	if opts.Config != nil {
		cfg = opts.Config
	}
	cfg, err = cfg.Clone()
	if err != nil {
		return nil, err
	}
	cfg.RunID = cp.RunID

	if err := cp.IsCompatible(cfg); err != nil {
		var ce *store.CompatibilityError
		if errors.As(err, &ce) {
			return nil, &eda.ResumeError{Field: ce.Field, Reason: fmt.Sprintf("checkpoint has %s, configuration has %s", ce.Expected, ce.Actual), Err: err}
		}
		return nil, &eda.ResumeError{Field: "config", Reason: "cannot compare with checkpoint", Err: err}
	}

	x, err := r.prepare(cfg)
	if err != nil {
		return nil, err
	}
	if x.graph.Options.AlgorithmID != cp.AlgorithmID {
		return nil, &eda.ResumeError{Field: "algorithmId", Reason: fmt.Sprintf("checkpoint has %s, configuration builds %s", cp.AlgorithmID, x.graph.Options.AlgorithmID)}
	}

	snap, err := cp.Snapshot()
	if err != nil {
		return nil, &eda.ResumeError{Field: "population", Reason: "cannot decode", Err: err}
	}
	if err := x.alg.Restore(snap); err != nil {
		return nil, err
	}
	x.resumed = true
	x.lastSaved = cp.Iteration
	x.checkpoint = store.Location(r.store, cp.RunID)

	start := r.now()
	r.publish(engine.Event{
		Type:        engine.EventRunResumed,
		RunID:       cp.RunID,
		AlgorithmID: cp.AlgorithmID,
		Iteration:   cp.Iteration,
		Evaluations: cp.Evaluations,
		Best:        cp.BestFitness(),
		Path:        x.checkpoint,
	})
	return r.drive(ctx, x, start)
}

func (r *Runner) prepare(cfg *config.Config) (*execution, error) {
	graph, err := r.reg.Build(cfg)
	if err != nil {
		return nil, err
	}
	eval := r.eval
	if eval == nil {
		eval = engine.NewParallelEvaluator(cfg.Run.Workers)
	}
	alg, err := engine.New(graph.Components, graph.Options, rng.NewManager(cfg.Seed), eval, r.pub)
	if err != nil {
		return nil, err
	}
	return &execution{cfg: cfg, graph: graph, alg: alg, lastSaved: -1}, nil
}

// drive iterates until the stopping condition fires, the context is done or
// an iteration fails. Checkpoints are only taken between iterations.
func (r *Runner) drive(ctx context.Context, x *execution, start time.Time) (*Result, error) {
	every := x.cfg.Run.CheckpointEvery
	for !x.alg.ShouldStop() {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(x, fmt.Errorf("interrupted at iteration %d: %w", x.alg.State().Iteration, err))
		}
		if err := x.alg.Iterate(ctx); err != nil {
			return nil, r.fail(x, fmt.Errorf("iteration %d: %w", x.alg.State().Iteration+1, err))
		}
		if it := x.alg.State().Iteration; every > 0 && it%every == 0 {
			if err := r.checkpoint(x); err != nil {
				return nil, r.fail(x, err)
			}
		}
	}

	st := x.alg.State()
	if st.Iteration != x.lastSaved {
		if err := r.checkpoint(x); err != nil {
			return nil, r.fail(x, err)
		}
	}

	reason := StopReason(x.cfg.Stopping, st)
	res := &Result{
		RunID:       st.RunID,
		AlgorithmID: st.AlgorithmID,
		Iterations:  st.Iteration,
		Evaluations: st.Evaluations,
		Restarts:    st.Restarts,
		Best:        st.Best,
		BestSummary: x.graph.Components.Representation.Summarize(st.Best.Genotype),
		StopReason:  reason,
		Checkpoint:  x.checkpoint,
		Resumed:     x.resumed,
		Elapsed:     r.now().Sub(start),
	}
	r.publish(engine.Event{
		Type:        engine.EventRunCompleted,
		RunID:       st.RunID,
		AlgorithmID: st.AlgorithmID,
		Iteration:   st.Iteration,
		Evaluations: st.Evaluations,
		Best:        st.BestValue(),
		Restarts:    st.Restarts,
		Message:     reason,
		Path:        x.checkpoint,
	})
	return res, nil
}

func (r *Runner) checkpoint(x *execution) error {
	if r.store == nil {
		return nil
	}
	snap, err := x.alg.Capture()
	if err != nil {
		return err
	}
	cp, err := store.NewCheckpoint(x.cfg, x.graph.Components.Representation, snap)
	if err != nil {
		return fmt.Errorf("failed to build checkpoint: %w", err)
	}
	cp.SavedAt = r.now().UTC()
	if err := r.store.SaveCheckpoint(cp.RunID, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if err := r.store.PruneHistory(cp.RunID, x.cfg.Run.KeepCheckpoints); err != nil {
		r.logger.Warn("Failed to prune checkpoint history", "run_id", cp.RunID, "error", err)
	}

	x.lastSaved = cp.Iteration
	x.checkpoint = store.Location(r.store, cp.RunID)
	r.publish(engine.Event{
		Type:        engine.EventCheckpointSaved,
		RunID:       cp.RunID,
		AlgorithmID: cp.AlgorithmID,
		Iteration:   cp.Iteration,
		Evaluations: cp.Evaluations,
		Best:        cp.BestFitness(),
		Path:        x.checkpoint,
	})
	return nil
}

// fail publishes run-failed and returns err. No partial generation has been
// committed at this point.
func (r *Runner) fail(x *execution, err error) error {
	e := engine.Event{
		Type:        engine.EventRunFailed,
		RunID:       x.cfg.RunID,
		AlgorithmID: x.graph.Options.AlgorithmID,
		Message:     err.Error(),
	}
	if st := x.alg.State(); st != nil {
		e.Iteration = st.Iteration
		e.Evaluations = st.Evaluations
		e.Best = st.BestValue()
		e.Restarts = st.Restarts
	}
	r.publish(e)
	return err
}

func (r *Runner) publish(e engine.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	r.pub.Publish(e)
}
