package registry

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

func echo(_ context.Context, st state.State, _ map[string]any) (state.State, error) {
	return st, nil
}

// TestRegistry tests registration and lookup.
func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("registers and looks up", func(t *testing.T) {
		t.Parallel()

		r := New()
		if err := r.Register("echo", echo); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		h, err := r.Lookup("echo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		st := state.State{"k": "v"}
		got, err := h(context.Background(), st, nil)
		if err != nil || got["k"] != "v" {
			t.Errorf("handler returned %v, %v", got, err)
		}
	})

	t.Run("unknown identifier", func(t *testing.T) {
		t.Parallel()

		_, err := New().Lookup("nope")
		if !errors.Is(err, ErrImplNotFound) {
			t.Errorf("expected ErrImplNotFound, got %v", err)
		}
		if ErrImplNotFound.Error() != state.ErrImplNotFound {
			t.Errorf("unexpected sentinel text %q", ErrImplNotFound)
		}
	})

	t.Run("rejects duplicates and empty input", func(t *testing.T) {
		t.Parallel()

		r := New()
		r.MustRegister("echo", echo)
		if err := r.Register("echo", echo); !errors.Is(err, ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
		if err := r.Register("", echo); err == nil {
			t.Error("expected error for empty name")
		}
		if err := r.Register("nil", nil); err == nil {
			t.Error("expected error for nil handler")
		}
	})

	t.Run("MustRegister panics on duplicate", func(t *testing.T) {
		t.Parallel()

		r := New()
		r.MustRegister("echo", echo)
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		r.MustRegister("echo", echo)
	})

	t.Run("names are sorted", func(t *testing.T) {
		t.Parallel()

		r := New()
		for _, n := range []string{"whois", "exec", "report"} {
			r.MustRegister(n, echo)
		}
		if got := r.Names(); !slices.Equal(got, []string{"exec", "report", "whois"}) {
			t.Errorf("unexpected names %v", got)
		}
	})

	t.Run("step id travels in the context", func(t *testing.T) {
		t.Parallel()

		if got := StepID(context.Background()); got != "" {
			t.Errorf("expected empty step id, got %q", got)
		}
		if got := StepID(WithStepID(context.Background(), "dnsx")); got != "dnsx" {
			t.Errorf("expected dnsx, got %q", got)
		}
	})
}
