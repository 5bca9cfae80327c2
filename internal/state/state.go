package state

import (
	"maps"
	"strings"

	"github.com/google/uuid"
)

// Well-known state fields.
const (
	// KeyRunID holds the opaque run identifier.
	KeyRunID = "run_id"

	// KeyTarget holds the domain or IP the run is aimed at.
	KeyTarget = "target"

	// KeyFlags holds execution flags such as "resume" and "force".
	KeyFlags = "flags"

	// KeyErrors holds the ordered list of failure records.
	KeyErrors = "errors"

	// TransientPrefix marks fields that must never be persisted,
	// e.g. a reference to a live view injected by a front end.
	TransientPrefix = "__"
)

// Execution flags stored under KeyFlags.
const (
	FlagResume = "resume"
	FlagForce  = "force"
)

// runIDLength is the number of hex characters kept from a UUID.
const runIDLength = 12

// State is the run state shared along the pipeline walk.
type State map[string]any

// NewRunID returns a fresh 12 character hex run identifier.
func NewRunID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:runIDLength]
}

// New creates the initial state for a run against target.
// Collections that steps append to are created empty so that every
// snapshot has the same shape.
func New(target string) State {
	return State{
		KeyRunID:  NewRunID(),
		KeyTarget: target,
		KeyFlags:  map[string]any{},

		"whois":     map[string]any{},
		"asn":       map[string]any{},
		"roots":     []any{},
		"providers": map[string]any{},

		"subdomains":  []any{},
		"resolved":    map[string]any{},
		"alive_hosts": []any{},
		"dns_surface": map[string]any{},

		"httpx":           []any{},
		"ports":           map[string]any{},
		"nmap":            []any{},
		"whatweb":         map[string]any{},
		"waf":             map[string]any{},
		"screenshots_dir": "",

		"urls":   []any{},
		"params": []any{},

		"ffuf_results": []any{},
		"cloud":        map[string]any{},
		"tls":          []any{},
		"idp":          []any{},

		"artifacts": []any{},
		"findings":  []any{},
		KeyErrors:   []any{},
	}
}

// RunID returns the run identifier, or "" when absent.
func (s State) RunID() string {
	return s.String(KeyRunID)
}

// Target returns the run target, or "" when absent.
func (s State) Target() string {
	return s.String(KeyTarget)
}

// String returns the string stored under key, or "".
func (s State) String(key string) string {
	v, _ := s[key].(string) //nolint:errcheck // zero value is the fallback
	return v
}

// SetFlags records the resume/force flags.
func (s State) SetFlags(resume, force bool) {
	flags, ok := s[KeyFlags].(map[string]any)
	if !ok {
		flags = map[string]any{}
	}
	flags[FlagResume] = resume
	flags[FlagForce] = force
	s[KeyFlags] = flags
}

// Flag reports whether the named execution flag is set.
func (s State) Flag(name string) bool {
	switch flags := s[KeyFlags].(type) {
	case map[string]any:
		b, _ := flags[name].(bool) //nolint:errcheck // missing flag is false
		return b
	case map[string]bool:
		return flags[name]
	}
	return false
}

// Strings returns the field under key as a string slice.
// Values decoded from JSON arrive as []any; both forms are accepted and
// non-string elements are skipped.
func (s State) Strings(key string) []string {
	switch v := s[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// SetStrings stores values under key in the JSON-compatible []any form.
func (s State) SetStrings(key string, values []string) {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	s[key] = out
}

// Clone returns a deep copy of s. Maps and slices are copied recursively;
// scalar values are shared.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// Persistable returns a deep copy of s without transient fields.
func (s State) Persistable() State {
	out := s.Clone()
	maps.DeleteFunc(out, func(k string, _ any) bool {
		return strings.HasPrefix(k, TransientPrefix)
	})
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case State:
		return t.Clone()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i], _ = cloneValue(e).(map[string]any) //nolint:errcheck // always a map
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []int:
		return append([]int(nil), t...)
	case map[string]string:
		return maps.Clone(t)
	case map[string]bool:
		return maps.Clone(t)
	case map[string][]string:
		out := make(map[string][]string, len(t))
		for k, e := range t {
			out[k] = append([]string(nil), e...)
		}
		return out
	case map[string][]int:
		out := make(map[string][]int, len(t))
		for k, e := range t {
			out[k] = append([]int(nil), e...)
		}
		return out
	default:
		return v
	}
}
