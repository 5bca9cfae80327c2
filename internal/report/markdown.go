package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// maxListed caps the entries listed per attack surface collection.
	maxListed = 50

	// maxStderr caps the stderr excerpt shown per error record.
	maxStderr = 2000
)

// listedFields are the surface collections whose entries are listed.
var listedFields = []string{"roots", "subdomains", "alive_hosts", "urls"}

// MarkdownWriter renders report.md.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run report in Markdown format.
func (w *MarkdownWriter) Write(d *Data) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, d)
	w.writeSteps(md, d)
	w.writeSurface(md, d)
	w.writeWhois(md, d)
	w.writeErrors(md, d)
	w.writeArtifacts(md, d)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, d *Data) {
	md.H1(d.Title)
	md.PlainText("")

	rows := [][]string{
		{"Target", "`" + d.Target + "`"},
		{"Run ID", "`" + d.RunID + "`"},
	}
	if d.Playbook != "" {
		rows = append(rows, []string{"Playbook", d.Playbook})
	}
	rows = append(rows,
		[]string{"Generated", d.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Steps", strconv.Itoa(len(d.Steps))},
		[]string{"Errors", strconv.Itoa(len(d.State.Errors()))},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeAlert(md, d)
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, d *Data) {
	counts := d.Counts()
	switch {
	case counts[StatusInterrupted] > 0:
		md.Cautionf("Run was interrupted before %d step(s) could execute.", counts[StatusInterrupted])
	case counts[StatusError] > 0:
		md.Warningf("%d step(s) failed. Results below are partial.", counts[StatusError])
	case counts[StatusMissing] > 0:
		md.Importantf("%d step(s) reference an unknown implementation.", counts[StatusMissing])
	case len(d.Steps) == 0:
		md.Note("No step has completed yet.")
	default:
		md.Tip("All steps completed.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeSteps(md *markdown.Markdown, d *Data) {
	md.H2("Steps")
	md.PlainText("")

	if len(d.Steps) == 0 {
		md.PlainText("No steps recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(d.Steps))
	for i, s := range d.Steps {
		rows[i] = []string{strconv.Itoa(i + 1), "`" + s.Step + "`", statusLabel(s.Status)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "Step", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, PieChart(d))
	md.PlainText("")
}

func (w *MarkdownWriter) writeSurface(md *markdown.Markdown, d *Data) {
	md.H2("Attack Surface")
	md.PlainText("")

	keys := d.SurfaceKeys()
	if len(keys) == 0 {
		md.PlainText("Nothing discovered.")
		md.PlainText("")
		return
	}

	surface := d.Surface()
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{"`" + k + "`", strconv.Itoa(surface[k])}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Field", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, k := range listedFields {
		items := d.State.Strings(k)
		if len(items) == 0 {
			continue
		}
		md.PlainTextf("### %s", cases.Title(language.English).String(strings.ReplaceAll(k, "_", " ")))
		md.PlainText("")
		if len(items) > maxListed {
			md.BulletList(items[:maxListed]...)
			md.PlainText("")
			md.PlainTextf("*%d more, see artifacts.*", len(items)-maxListed)
		} else {
			md.BulletList(items...)
		}
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeWhois(md *markdown.Markdown, d *Data) {
	rows := d.Whois()
	if len(rows) == 0 {
		return
	}
	md.H2("WHOIS")
	md.PlainText("")
	for _, r := range rows {
		r[1] = truncateString(r[1], 120)
	}
	md.Table(markdown.TableSet{
		Header: []string{"Key", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, d *Data) {
	errs := d.State.Errors()
	md.H2("Errors")
	md.PlainText("")

	if len(errs) == 0 {
		md.PlainText("No errors recorded.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(errs))
	for i, e := range errs {
		msg := e.Error
		if msg == "" {
			msg = e.Exception
		}
		impl := e.Impl
		if impl == "" {
			impl = "-"
		}
		rows[i] = []string{"`" + e.Step + "`", impl, truncateString(escapeCell(msg), 80)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Step", "Impl", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, e := range errs {
		if e.Stderr != "" {
			md.Details(e.Step+" stderr", truncateString(e.Stderr, maxStderr))
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeArtifacts(md *markdown.Markdown, d *Data) {
	if len(d.Artifacts) == 0 {
		return
	}
	md.H2("Artifacts")
	md.PlainText("")
	items := make([]string, len(d.Artifacts))
	for i, a := range d.Artifacts {
		items[i] = "`artifacts/" + a + "`"
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by RedFlow*")
}

// PieChart returns the mermaid source of the step outcome distribution.
func PieChart(d *Data) string {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle(fmt.Sprintf("Step outcomes for %s", d.Target)),
		piechart.WithShowData(true),
	)
	counts := d.Counts()
	for _, status := range statusOrder {
		if n := counts[status]; n > 0 {
			chart.LabelAndIntValue(statusLabel(status), uint64(n))
		}
	}
	return chart.String()
}

func statusLabel(status string) string {
	return cases.Title(language.English).String(status)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
