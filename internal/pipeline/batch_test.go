package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// TestBatchRunnerNew tests the BatchRunner constructor.
func TestBatchRunnerNew(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, string) (state.State, error) { return nil, nil }

	t.Run("creates runner with defaults", func(t *testing.T) {
		t.Parallel()

		b := NewBatchRunner(noop)
		if b.concurrency != DefaultConcurrency {
			t.Errorf("expected default concurrency %d, got %d", DefaultConcurrency, b.concurrency)
		}
		if b.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		b := NewBatchRunner(noop, WithConcurrency(0))
		if b.concurrency != DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, b.concurrency)
		}
		b = NewBatchRunner(noop, WithConcurrency(4))
		if b.concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", b.concurrency)
		}
	})
}

// TestBatchRunnerRun tests batch execution.
func TestBatchRunnerRun(t *testing.T) {
	t.Parallel()

	t.Run("keeps target order and isolates failures", func(t *testing.T) {
		t.Parallel()

		run := func(_ context.Context, target string) (state.State, error) {
			if target == "bad.example" {
				return nil, errors.New("no route")
			}
			return state.New(target), nil
		}

		targets := []string{"a.example", "bad.example", "c.example"}
		results, err := NewBatchRunner(run, WithConcurrency(3)).Run(context.Background(), targets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != len(targets) {
			t.Fatalf("expected %d results, got %d", len(targets), len(results))
		}
		for i, r := range results {
			if r.Target != targets[i] {
				t.Errorf("result %d: expected target %s, got %s", i, targets[i], r.Target)
			}
		}
		if results[1].Err == nil {
			t.Error("expected failure for bad.example")
		}
		if results[0].Err != nil || results[2].Err != nil {
			t.Error("one failing run must not affect the others")
		}
		if results[2].State.Target() != "c.example" {
			t.Errorf("unexpected state %v", results[2].State)
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var current, peak atomic.Int32
		run := func(_ context.Context, target string) (state.State, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return state.New(target), nil
		}

		targets := []string{"1", "2", "3", "4", "5", "6"}
		if _, err := NewBatchRunner(run, WithConcurrency(2)).Run(context.Background(), targets); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if peak.Load() > 2 {
			t.Errorf("expected at most 2 concurrent runs, got %d", peak.Load())
		}
	})

	t.Run("cancelled batch skips remaining targets", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var calls atomic.Int32
		run := func(_ context.Context, target string) (state.State, error) {
			calls.Add(1)
			cancel()
			return state.New(target), nil
		}

		results, err := NewBatchRunner(run).Run(ctx, []string{"a", "b", "c"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected exactly one run, got %d", calls.Load())
		}
		if !errors.Is(results[2].Err, context.Canceled) {
			t.Errorf("expected skipped target to carry the cancellation, got %v", results[2].Err)
		}
	})
}
