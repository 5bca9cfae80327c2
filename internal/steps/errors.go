package steps

import "errors"

// Error codes written into state error records by steps that keep going
// after a tool failed.
const (
	ErrTimeout    = "timeout"
	ErrExitStatus = "exit_status"
)

var (
	// ErrMissingParam is returned when a required step parameter is absent.
	ErrMissingParam = errors.New("missing step parameter")

	// ErrInvalidParam is returned when a step parameter has the wrong type.
	ErrInvalidParam = errors.New("invalid step parameter")

	// ErrNoRunID is returned when the state carries no run identifier.
	ErrNoRunID = errors.New("state has no run_id")
)
