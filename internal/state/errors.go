package state

// Error values written into ErrorRecord.Error by the pipeline.
const (
	// ErrImplNotFound marks a step whose implementation is not registered.
	ErrImplNotFound = "impl_not_found"

	// ErrInterrupted marks the step that was next in line when a run
	// was cancelled.
	ErrInterrupted = "interrupted"
)

// ErrorRecord is one structured failure entry in the "errors" field.
// Exactly one of Error or Exception is normally set: Error carries a fixed
// code, Exception the message of an error returned by a step.
type ErrorRecord struct {
	Step      string
	Impl      string
	Error     string
	Exception string
	Stderr    string
}

func (r ErrorRecord) toMap() map[string]any {
	m := map[string]any{
		"step": r.Step,
	}
	if r.Impl != "" {
		m["impl"] = r.Impl
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Exception != "" {
		m["exception"] = r.Exception
	}
	if r.Stderr != "" {
		m["stderr"] = r.Stderr
	}
	return m
}

func recordFromMap(m map[string]any) ErrorRecord {
	str := func(k string) string {
		v, _ := m[k].(string) //nolint:errcheck // absent fields stay empty
		return v
	}
	return ErrorRecord{
		Step:      str("step"),
		Impl:      str("impl"),
		Error:     str("error"),
		Exception: str("exception"),
		Stderr:    str("stderr"),
	}
}

// AppendError appends rec to the errors field. Existing records are kept
// in order; the field is never truncated.
func (s State) AppendError(rec ErrorRecord) {
	var list []any
	switch v := s[KeyErrors].(type) {
	case []any:
		list = v
	case []map[string]any:
		list = make([]any, len(v))
		for i, e := range v {
			list[i] = e
		}
	}
	s[KeyErrors] = append(list, rec.toMap())
}

// Errors decodes the errors field.
func (s State) Errors() []ErrorRecord {
	var out []ErrorRecord
	switch v := s[KeyErrors].(type) {
	case []any:
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				out = append(out, recordFromMap(m))
			}
		}
	case []map[string]any:
		for _, m := range v {
			out = append(out, recordFromMap(m))
		}
	}
	return out
}
