package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/observer"
	"github.com/Wilhelmroentgen/REDFLOW/internal/playbook"
	"github.com/Wilhelmroentgen/REDFLOW/internal/registry"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// Executor runs compiled plans. It holds no per-run state and may be
// shared by concurrent runs.
type Executor struct {
	registry *registry.Registry

	// store receives checkpoints; nil disables them.
	store *snapshot.Store

	logger *slog.Logger
}

// Option is a function that configures an Executor.
type Option func(*Executor)

// WithLogger sets a custom logger for the executor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithStore enables checkpointing through store.
func WithStore(store *snapshot.Store) Option {
	return func(e *Executor) {
		e.store = store
	}
}

// WithRegistry sets the registry used to resolve step implementations.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Executor) {
		e.registry = reg
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// runConfig carries per-invocation settings.
type runConfig struct {
	observer observer.Observer
}

// RunOption configures a single Run call.
type RunOption func(*runConfig)

// WithObserver attaches obs to this run only.
func WithObserver(obs observer.Observer) RunOption {
	return func(c *runConfig) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// Run walks plan from its entry step to the terminal, threading st through
// every step, and writes the final checkpoint. The caller hands ownership
// of st to Run; the returned state replaces it.
//
// Step failures are recorded in the state and do not make Run fail. A
// non-nil error means the plan could not be started, or ctx was cancelled
// between two steps; in the latter case the partial state is returned as
// well and has been checkpointed as snapshot.NameInterrupted.
func (e *Executor) Run(ctx context.Context, plan *playbook.Plan, st state.State, opts ...RunOption) (state.State, error) {
	if plan == nil {
		return st, ErrNilPlan
	}
	if e.registry == nil {
		return st, ErrNilRegistry
	}
	if _, ok := plan.Step(plan.Entry()); !ok {
		return st, ErrEntryNotFound
	}

	cfg := runConfig{observer: observer.Nop{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if st == nil {
		st = state.State{}
	}

	runID := st.RunID()
	logger := e.logger.With("run_id", runID, "playbook", plan.Name())
	logger.Info("run started", "target", st.Target(), "steps", len(plan.StepIDs()))
	start := time.Now()

	current := st
	for id := plan.Entry(); id != playbook.Terminal && id != ""; id = plan.Next(id) {
		if err := ctx.Err(); err != nil {
			logger.Warn("run interrupted", "step", id, "error", err)
			current.AppendError(state.ErrorRecord{Step: id, Error: state.ErrInterrupted})
			e.checkpoint(ctx, runID, snapshot.NameInterrupted, current)
			return current, err
		}

		decl, _ := plan.Step(id)
		current = e.runStep(ctx, logger, decl, current, cfg.observer)
	}

	e.checkpoint(ctx, runID, snapshot.NameFinal, current)
	logger.Info("run finished",
		"duration", time.Since(start).Round(time.Millisecond),
		"errors", len(current.Errors()),
	)
	return current, nil
}

func (e *Executor) checkpoint(ctx context.Context, runID, name string, st state.State) {
	if e.store == nil {
		return
	}
	e.store.Write(ctx, runID, name, st)
}
