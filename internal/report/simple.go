package report

import (
	"fmt"
	"io"
	"strings"
)

// SimpleWriter outputs a plain text run summary for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds stderr excerpts to error records.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables stderr excerpts in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary.
func (w *SimpleWriter) Write(d *Data) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, d)
	w.writeSteps(&sb, d)
	w.writeSurface(&sb, d)
	w.writeErrors(&sb, d)

	return w.output.Write([]byte(sb.String()))
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 60))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, d *Data) {
	fmt.Fprintf(sb, "Run:      %s\n", d.RunID)
	fmt.Fprintf(sb, "Target:   %s\n", d.Target)
	if d.Playbook != "" {
		fmt.Fprintf(sb, "Playbook: %s\n", d.Playbook)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSteps(sb *strings.Builder, d *Data) {
	section(sb, "STEPS")
	if len(d.Steps) == 0 {
		sb.WriteString("  none recorded\n\n")
		return
	}
	for _, s := range d.Steps {
		fmt.Fprintf(sb, "  [%s] %s\n", indicator(s.Status), s.Step)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSurface(sb *strings.Builder, d *Data) {
	keys := d.SurfaceKeys()
	if len(keys) == 0 {
		return
	}
	section(sb, "ATTACK SURFACE")
	surface := d.Surface()
	for _, k := range keys {
		fmt.Fprintf(sb, "  %-12s %d\n", k+":", surface[k])
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeErrors(sb *strings.Builder, d *Data) {
	errs := d.State.Errors()
	if len(errs) == 0 {
		return
	}
	section(sb, "ERRORS")
	for _, e := range errs {
		msg := e.Error
		if msg == "" {
			msg = e.Exception
		}
		fmt.Fprintf(sb, "  * %s: %s\n", e.Step, msg)
		if w.verbose && e.Stderr != "" {
			for _, line := range strings.Split(strings.TrimRight(e.Stderr, "\n"), "\n") {
				fmt.Fprintf(sb, "      %s\n", line)
			}
		}
	}
	sb.WriteString("\n")
}

func indicator(status string) string {
	switch status {
	case StatusOK:
		return "+"
	case StatusError:
		return "!"
	case StatusMissing:
		return "?"
	case StatusInterrupted:
		return "x"
	default:
		return " "
	}
}
