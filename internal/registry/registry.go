// Package registry maps implementation identifiers declared by playbook
// steps to the Go handlers that execute them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// ErrImplNotFound is returned by Lookup for identifiers never registered.
var ErrImplNotFound = errors.New(state.ErrImplNotFound)

// ErrDuplicate is returned by Register when an identifier is taken.
var ErrDuplicate = errors.New("implementation already registered")

// Handler executes one step. It receives a state it owns exclusively and
// the step's declared parameters, and returns the state to hand to the
// next step. A non-nil error discards the returned state.
type Handler func(ctx context.Context, st state.State, params map[string]any) (state.State, error)

// Registry is safe for concurrent use; it is normally filled once at
// startup and then only read.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("register %q: name and handler are required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(name string, h Handler) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

// Lookup returns the handler bound to name.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImplNotFound, name)
	}
	return h, nil
}

// Names returns the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

type stepKey struct{}

// WithStepID returns a context carrying the id of the step a handler is
// invoked for.
func WithStepID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stepKey{}, id)
}

// StepID returns the id stored by WithStepID, or "".
func StepID(ctx context.Context) string {
	id, _ := ctx.Value(stepKey{}).(string) //nolint:errcheck // zero value is the fallback
	return id
}
