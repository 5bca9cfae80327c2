package playbook

import "errors"

// ErrInvalidSpec is matched by every *SpecError through errors.Is.
var ErrInvalidSpec = errors.New("invalid playbook")

// ErrPlaybookNotFound is returned by Load when no playbook matches.
var ErrPlaybookNotFound = errors.New("playbook not found")

// SpecError describes why a playbook document was rejected.
// Path locates the offending element, e.g. "steps[2].id".
type SpecError struct {
	Path   string
	Reason string
}

// Error implements error.
func (e *SpecError) Error() string {
	if e.Path == "" {
		return ErrInvalidSpec.Error() + ": " + e.Reason
	}
	return ErrInvalidSpec.Error() + ": " + e.Path + ": " + e.Reason
}

// Is makes errors.Is(err, ErrInvalidSpec) true for every SpecError.
func (e *SpecError) Is(target error) bool {
	return target == ErrInvalidSpec
}

func specErr(path, reason string) *SpecError {
	return &SpecError{Path: path, Reason: reason}
}
