package pipeline

import "errors"

var (
	// ErrNilPlan is returned when Run is called without a compiled plan.
	ErrNilPlan = errors.New("pipeline: nil plan")

	// ErrEntryNotFound is returned when the plan's entry step cannot be
	// resolved. No step has executed in that case.
	ErrEntryNotFound = errors.New("pipeline: entry step not found")

	// ErrNilRegistry is returned when the executor has no registry.
	ErrNilRegistry = errors.New("pipeline: nil registry")
)
