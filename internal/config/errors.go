package config

import "errors"

// Configuration validation errors returned by Config.Validate and the
// Apply methods. Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when no target domain, IP or list file is given.
	ErrNoTarget = errors.New("no target specified: provide a domain, an IP or a file of targets")

	// ErrNoPlaybook is returned when the playbook name is empty.
	ErrNoPlaybook = errors.New("no playbook specified")

	// ErrNoRunsDir is returned when the runs directory is empty.
	ErrNoRunsDir = errors.New("no runs directory configured")

	// ErrInvalidTimeout is returned when a timeout is not a positive
	// number of seconds.
	ErrInvalidTimeout = errors.New("invalid timeout: must be a positive number of seconds")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrAllowlistNotFound is returned when --allowlist names a missing file.
	ErrAllowlistNotFound = errors.New("allowlist file not found")
)
