package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/observer"
	"github.com/Wilhelmroentgen/REDFLOW/internal/playbook"
	"github.com/Wilhelmroentgen/REDFLOW/internal/registry"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// StepError may be returned by a handler to attach the stderr of the tool
// that made it fail to the recorded error.
type StepError struct {
	Err    error
	Stderr string
}

func (e *StepError) Error() string { return e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// runStep executes one step and never fails. The observer is always
// notified before the corresponding checkpoint is written.
func (e *Executor) runStep(ctx context.Context, logger *slog.Logger, decl playbook.Step, st state.State, obs observer.Observer) state.State {
	runID := st.RunID()
	logger = logger.With("step", decl.ID, "impl", decl.Impl)

	obs.OnStart(decl.ID)
	start := time.Now()

	handler, err := e.registry.Lookup(decl.Impl)
	if err != nil {
		logger.Error("step implementation not found")
		st.AppendError(state.ErrorRecord{Step: decl.ID, Impl: decl.Impl, Error: state.ErrImplNotFound})
		obs.OnFail(decl.ID, fmt.Sprintf("%s: %s", state.ErrImplNotFound, decl.Impl))
		e.checkpoint(ctx, runID, snapshot.AfterStep(decl.ID), st)
		return st
	}

	next, err := invoke(registry.WithStepID(ctx, decl.ID), handler, st.Clone(), decl.Params)
	if err == nil && next == nil {
		err = errors.New("implementation returned no state")
	}
	if err != nil {
		rec := state.ErrorRecord{Step: decl.ID, Impl: decl.Impl, Exception: err.Error()}
		var se *StepError
		if errors.As(err, &se) {
			rec.Stderr = se.Stderr
		}
		logger.Warn("step failed", "duration", time.Since(start).Round(time.Millisecond), "error", err)
		st.AppendError(rec)
		obs.OnFail(decl.ID, "exception: "+err.Error())
		e.checkpoint(ctx, runID, snapshot.AfterStepError(decl.ID), st)
		return st
	}

	logger.Info("step finished", "duration", time.Since(start).Round(time.Millisecond))
	obs.OnFinish(decl.ID)
	e.checkpoint(ctx, runID, snapshot.AfterStep(decl.ID), next)
	return next
}

// invoke calls h, turning a panic into an error so that a misbehaving
// implementation is contained like any other failure.
func invoke(ctx context.Context, h registry.Handler, st state.State, params map[string]any) (next state.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, st, params)
}
