package observer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// Status is the display state of one step in the live view.
type Status int

const (
	// Pending steps have not started yet.
	Pending Status = iota
	// Running steps have started and not yet reported back.
	Running
	// Succeeded steps finished normally.
	Succeeded
	// Failed steps reported a failure.
	Failed
)

// String returns the badge text of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "ok"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultRefresh is the live view repaint interval.
const DefaultRefresh = 250 * time.Millisecond

// eventBuffer bounds the notifications queued ahead of the render loop.
const eventBuffer = 256

// maxDetail truncates failure messages in the table.
const maxDetail = 60

type row struct {
	step     string
	status   Status
	started  time.Time
	finished time.Time
	detail   string
}

type event struct {
	step    string
	status  Status
	message string
	at      time.Time
}

// Live renders a table of steps to a terminal. Notifications are queued on
// a channel and applied by a single render goroutine, which also repaints
// the table on every tick; no other goroutine touches the rows.
type Live struct {
	w        io.Writer
	title    string
	interval time.Duration
	now      func() time.Time
	colors   map[Status]*color.Color

	events  chan event
	stopped chan struct{}
	done    chan struct{}

	started  atomic.Bool
	stopOnce sync.Once

	// owned by the render goroutine
	rows  []*row
	index map[string]*row
	lines int
}

// LiveOption configures a Live view.
type LiveOption func(*Live)

// WithTitle sets a line printed above the table.
func WithTitle(title string) LiveOption {
	return func(l *Live) {
		l.title = title
	}
}

// WithRefresh sets the repaint interval.
func WithRefresh(d time.Duration) LiveOption {
	return func(l *Live) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithColor forces status badges to be colored or plain. By default
// fatih/color decides from the terminal.
func WithColor(enabled bool) LiveOption {
	return func(l *Live) {
		for _, c := range l.colors {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// NewLive returns a live view listing steps as pending. Steps reported
// later that are not in the list are appended.
func NewLive(w io.Writer, steps []string, opts ...LiveOption) *Live {
	l := &Live{
		w:        w,
		interval: DefaultRefresh,
		now:      time.Now,
		colors: map[Status]*color.Color{
			Pending:   color.New(color.FgHiBlack),
			Running:   color.New(color.FgCyan, color.Bold),
			Succeeded: color.New(color.FgGreen),
			Failed:    color.New(color.FgRed, color.Bold),
		},
		events:  make(chan event, eventBuffer),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
		index:   make(map[string]*row, len(steps)),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, s := range steps {
		l.row(s)
	}
	return l
}

// Start launches the render goroutine. It returns immediately; the view
// stops when ctx is done or Stop is called.
func (l *Live) Start(ctx context.Context) {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.loop(ctx)
}

// Stop applies pending notifications, paints the final table and waits
// for the render goroutine to exit. It is safe to call more than once.
func (l *Live) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
	})
	if l.started.Load() {
		<-l.done
	}
}

func (l *Live) OnStart(stepID string) {
	l.send(event{step: stepID, status: Running, at: l.now()})
}

func (l *Live) OnFinish(stepID string) {
	l.send(event{step: stepID, status: Succeeded, at: l.now()})
}

func (l *Live) OnFail(stepID, message string) {
	l.send(event{step: stepID, status: Failed, message: message, at: l.now()})
}

func (l *Live) send(ev event) {
	select {
	case l.events <- ev:
	case <-l.stopped:
	}
}

func (l *Live) loop(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.render()
	for {
		select {
		case ev := <-l.events:
			l.apply(ev)
		case <-ticker.C:
			l.render()
		case <-ctx.Done():
			l.finish()
			return
		case <-l.stopped:
			l.finish()
			return
		}
	}
}

func (l *Live) finish() {
	for {
		select {
		case ev := <-l.events:
			l.apply(ev)
		default:
			l.render()
			return
		}
	}
}

func (l *Live) row(step string) *row {
	r, ok := l.index[step]
	if !ok {
		r = &row{step: step}
		l.index[step] = r
		l.rows = append(l.rows, r)
	}
	return r
}

func (l *Live) apply(ev event) {
	r := l.row(ev.step)
	r.status = ev.status
	switch ev.status {
	case Running:
		r.started = ev.at
		r.finished = time.Time{}
		r.detail = ""
	case Succeeded, Failed:
		r.finished = ev.at
		r.detail = truncate(ev.message, maxDetail)
	}
}

func (l *Live) render() {
	var buf bytes.Buffer
	if l.title != "" {
		fmt.Fprintln(&buf, l.title)
	}

	table := tablewriter.NewWriter(&buf)
	table.Header([]string{"Step", "Status", "Elapsed", "Detail"})
	now := l.now()
	for _, r := range l.rows {
		_ = table.Append([]string{r.step, l.colors[r.status].Sprint(r.status.String()), elapsed(r, now), r.detail}) //nolint:errcheck // buffer writes do not fail
	}
	_ = table.Render() //nolint:errcheck // buffer writes do not fail

	if l.lines > 0 {
		// move the cursor back over the previous frame and clear it
		fmt.Fprintf(l.w, "\x1b[%dA\x1b[J", l.lines)
	}
	l.lines = bytes.Count(buf.Bytes(), []byte{'\n'})
	_, _ = l.w.Write(buf.Bytes()) //nolint:errcheck // best-effort display
}

func elapsed(r *row, now time.Time) string {
	switch {
	case r.started.IsZero():
		return "-"
	case r.finished.IsZero():
		return now.Sub(r.started).Round(100 * time.Millisecond).String()
	default:
		return r.finished.Sub(r.started).Round(100 * time.Millisecond).String()
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
