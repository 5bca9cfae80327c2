package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// JSONWriter outputs a machine readable run summary.
type JSONWriter struct {
	baseWriter

	indent bool

	// withState embeds the full persistable state.
	withState bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithPrettyPrint enables two-space indented output.
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
	}
}

// WithState includes the run state in the summary.
func WithState() JSONWriterOption {
	return func(w *JSONWriter) {
		w.withState = true
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Summary is the JSON document written by JSONWriter.
type Summary struct {
	RunID       string         `json:"run_id"`
	Target      string         `json:"target"`
	Playbook    string         `json:"playbook,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
	Steps       []StepOutcome  `json:"steps"`
	Counts      map[string]int `json:"counts"`
	Surface     map[string]int `json:"surface"`
	Errors      []ErrorEntry   `json:"errors"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	State       state.State    `json:"state,omitempty"`
}

// ErrorEntry mirrors one error record.
type ErrorEntry struct {
	Step      string `json:"step"`
	Impl      string `json:"impl,omitempty"`
	Error     string `json:"error,omitempty"`
	Exception string `json:"exception,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
}

// NewSummary converts report data to its JSON form.
func NewSummary(d *Data) *Summary {
	steps := d.Steps
	if steps == nil {
		steps = []StepOutcome{}
	}
	errs := d.State.Errors()
	entries := make([]ErrorEntry, len(errs))
	for i, e := range errs {
		entries[i] = ErrorEntry(e)
	}
	return &Summary{
		RunID:       d.RunID,
		Target:      d.Target,
		Playbook:    d.Playbook,
		GeneratedAt: d.GeneratedAt,
		Steps:       steps,
		Counts:      d.Counts(),
		Surface:     d.Surface(),
		Errors:      entries,
		Artifacts:   d.Artifacts,
	}
}

// Write outputs the summary as JSON followed by a newline.
func (w *JSONWriter) Write(d *Data) (int, error) {
	s := NewSummary(d)
	if w.withState {
		s.State = d.State.Persistable()
	}

	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = json.Marshal(s)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
