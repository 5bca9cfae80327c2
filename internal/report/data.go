package report

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// Step outcomes derived from checkpoints and error records.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusMissing     = "missing"
	StatusInterrupted = "interrupted"
)

// statusOrder fixes the order outcomes are counted and charted in.
var statusOrder = []string{StatusOK, StatusError, StatusMissing, StatusInterrupted}

// surfaceFields are the state collections summarized as attack surface.
var surfaceFields = []string{
	"roots", "subdomains", "alive_hosts", "urls", "ports", "open_ports",
	"tls", "nmap", "params", "findings",
}

// StepOutcome is the final status of one executed step.
type StepOutcome struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

// Data is everything a writer needs to render a run.
type Data struct {
	Title       string
	RunID       string
	Target      string
	Playbook    string
	GeneratedAt time.Time
	State       state.State
	Steps       []StepOutcome
	Artifacts   []string
}

// NewData builds report data for st. checkpoints are the checkpoint names
// of the run, oldest first, as returned by snapshot.Store.Checkpoints.
func NewData(title string, st state.State, checkpoints, artifacts []string) *Data {
	return &Data{
		Title:       title,
		RunID:       st.RunID(),
		Target:      st.Target(),
		Playbook:    st.String("playbook"),
		GeneratedAt: time.Now().UTC(),
		State:       st,
		Steps:       Outcomes(checkpoints, st.Errors()),
		Artifacts:   artifacts,
	}
}

// Outcomes derives per-step results in execution order.
// A step that wrote state_after_<id>_error failed; one that wrote
// state_after_<id> succeeded unless an impl_not_found record names it.
// A step named by an interrupted record never ran.
func Outcomes(checkpoints []string, errs []state.ErrorRecord) []StepOutcome {
	missing := map[string]bool{}
	var interrupted []string
	for _, e := range errs {
		switch e.Error {
		case state.ErrImplNotFound:
			missing[e.Step] = true
		case state.ErrInterrupted:
			interrupted = append(interrupted, e.Step)
		}
	}

	prefix := snapshot.AfterStep("")
	index := map[string]int{}
	var out []StepOutcome
	for _, name := range checkpoints {
		id, ok := strings.CutPrefix(name, prefix)
		if !ok || id == "" {
			continue
		}
		status := StatusOK
		if base, failed := strings.CutSuffix(id, "_error"); failed && base != "" {
			id, status = base, StatusError
		} else if missing[id] {
			status = StatusMissing
		}
		if i, seen := index[id]; seen {
			out[i].Status = status
			continue
		}
		index[id] = len(out)
		out = append(out, StepOutcome{Step: id, Status: status})
	}
	for _, id := range interrupted {
		if _, seen := index[id]; !seen {
			out = append(out, StepOutcome{Step: id, Status: StatusInterrupted})
		}
	}
	return out
}

// Counts returns how many steps ended in each status.
func (d *Data) Counts() map[string]int {
	counts := map[string]int{}
	for _, s := range d.Steps {
		counts[s.Status]++
	}
	return counts
}

// Failed reports whether any step did not succeed.
func (d *Data) Failed() bool {
	for _, s := range d.Steps {
		if s.Status != StatusOK {
			return true
		}
	}
	return false
}

// Surface returns the number of entries of every non-empty attack surface
// collection, keyed by state field.
func (d *Data) Surface() map[string]int {
	out := map[string]int{}
	for _, key := range surfaceFields {
		if n := size(d.State[key]); n > 0 {
			out[key] = n
		}
	}
	return out
}

// SurfaceKeys returns the keys of Surface in display order.
func (d *Data) SurfaceKeys() []string {
	surface := d.Surface()
	var keys []string
	for _, key := range surfaceFields {
		if _, ok := surface[key]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Whois flattens the whois and asn maps into sorted key/value rows.
// Nested maps and flags are left out.
func (d *Data) Whois() [][]string {
	var rows [][]string
	for _, field := range []string{"whois", "asn"} {
		m, ok := d.State[field].(map[string]any)
		if !ok {
			continue
		}
		for _, k := range slices.Sorted(maps.Keys(m)) {
			if v := flatten(m[k]); v != "" {
				rows = append(rows, []string{k, v})
			}
		}
	}
	return rows
}

func size(v any) int {
	switch x := v.(type) {
	case []any:
		return len(x)
	case []string:
		return len(x)
	case map[string]any:
		return len(x)
	default:
		return 0
	}
}

func flatten(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := flatten(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(x, ", ")
	case map[string]any, bool, nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
