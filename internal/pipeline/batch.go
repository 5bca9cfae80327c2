package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// DefaultConcurrency is the number of runs a BatchRunner drives at once.
const DefaultConcurrency = 1

// RunFunc performs one complete run against target and returns its final
// state. Implementations usually prepare the state and an observer and
// call Executor.Run.
type RunFunc func(ctx context.Context, target string) (state.State, error)

// BatchResult is the outcome of one run of a batch.
type BatchResult struct {
	Target string
	State  state.State
	Err    error
}

// BatchRunner drives independent runs for several targets.
// A failed run never cancels the others.
type BatchRunner struct {
	run         RunFunc
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchRunner) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchRunner) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchRunner creates a BatchRunner calling run once per target.
func NewBatchRunner(run RunFunc, opts ...BatchOption) *BatchRunner {
	b := &BatchRunner{
		run:         run,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Run executes one run per target and returns the results in target order.
// Targets not started because ctx was cancelled carry ctx.Err(). The
// returned error is ctx.Err() when the batch was cancelled, nil otherwise.
func (b *BatchRunner) Run(ctx context.Context, targets []string) ([]BatchResult, error) {
	b.logger.Info("starting batch", "targets", len(targets), "concurrency", b.concurrency)
	start := time.Now()

	results := make([]BatchResult, len(targets))

	// A plain group: run failures are stored, not propagated, so that one
	// failing target does not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for i, target := range targets {
		results[i].Target = target
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}

			b.logger.Info("run starting", "target", target, "index", i+1, "total", len(targets))
			st, err := b.run(ctx, target)
			results[i].State = st
			results[i].Err = err
			if err != nil {
				b.logger.Warn("run failed", "target", target, "error", err)
			}
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	b.logger.Info("batch complete", "targets", len(targets), "elapsed", time.Since(start).Round(time.Millisecond))
	return results, ctx.Err()
}
