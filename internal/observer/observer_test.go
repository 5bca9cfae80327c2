package observer

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"
)

// recorder collects notifications as strings.
type recorder struct {
	events []string
}

func (r *recorder) OnStart(id string) { r.events = append(r.events, "start:"+id) }
func (r *recorder) OnFinish(id string) { r.events = append(r.events, "finish:"+id) }
func (r *recorder) OnFail(id, msg string) { r.events = append(r.events, "fail:"+id+":"+msg) }

// TestMulti tests fan-out ordering.
func TestMulti(t *testing.T) {
	t.Parallel()

	a, b := &recorder{}, &recorder{}
	m := Multi(a, nil, b)

	m.OnStart("x")
	m.OnFail("x", "boom")
	m.OnStart("y")
	m.OnFinish("y")

	want := []string{"start:x", "fail:x:boom", "start:y", "finish:y"}
	if !slices.Equal(a.events, want) || !slices.Equal(b.events, want) {
		t.Errorf("unexpected events: %v / %v", a.events, b.events)
	}
}

// TestFuncs tests the adapter, including nil fields.
func TestFuncs(t *testing.T) {
	t.Parallel()

	var got []string
	f := Funcs{Fail: func(id, msg string) { got = append(got, id+"="+msg) }}

	f.OnStart("a")
	f.OnFinish("a")
	f.OnFail("b", "bad")

	if !slices.Equal(got, []string{"b=bad"}) {
		t.Errorf("unexpected calls %v", got)
	}

	var _ Observer = Nop{}
	Nop{}.OnFail("c", "ignored")
}

// TestLogObserver tests structured log output.
func TestLogObserver(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := NewLogObserver(logger, "abc123")

	o.OnStart("whois")
	o.OnFinish("whois")
	o.OnStart("nmap")
	o.OnFail("nmap", "exit 1")

	out := buf.String()
	for _, want := range []string{
		`msg="step started" run_id=abc123 step=whois`,
		`msg="step finished" run_id=abc123 step=whois`,
		`msg="step failed" run_id=abc123 step=nmap`,
		`error="exit 1"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if len(o.started) != 0 {
		t.Errorf("expected start times to be released, got %v", o.started)
	}
}

// TestLive tests the live table view.
func TestLive(t *testing.T) {
	t.Parallel()

	t.Run("renders final statuses on Stop", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := NewLive(&buf, []string{"whois", "subfinder", "report"},
			WithTitle("run abc123"), WithColor(false), WithRefresh(time.Hour))
		l.Start(context.Background())

		l.OnStart("whois")
		l.OnFinish("whois")
		l.OnStart("subfinder")
		l.OnFail("subfinder", "exception: tool crashed")
		l.OnStart("extra")
		l.OnFinish("extra")
		l.Stop()
		l.Stop()

		out := buf.String()
		frames := strings.Split(out, "\x1b[J")
		last := frames[len(frames)-1]
		for _, want := range []string{"run abc123", "whois", "ok", "subfinder", "error", "tool crashed", "report", "pending", "extra"} {
			if !strings.Contains(last, want) {
				t.Errorf("expected %q in final frame:\n%s", want, last)
			}
		}
		if strings.Contains(last, "running") {
			t.Errorf("no step should be running in the final frame:\n%s", last)
		}
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		l := NewLive(&buf, []string{"a"}, WithColor(false), WithRefresh(10*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		l.Start(ctx)
		l.OnStart("a")
		cancel()

		select {
		case <-l.done:
		case <-time.After(5 * time.Second):
			t.Fatal("render goroutine did not exit")
		}
		l.Stop()
	})

	t.Run("notifications after Stop do not block", func(t *testing.T) {
		t.Parallel()

		l := NewLive(&bytes.Buffer{}, nil, WithColor(false))
		l.Start(context.Background())
		l.Stop()

		for range eventBuffer + 10 {
			l.OnStart("late")
		}
	})
}

// TestStatusAndHelpers tests small formatting helpers.
func TestStatusAndHelpers(t *testing.T) {
	t.Parallel()

	if Status(42).String() != "unknown" {
		t.Error("expected unknown for out-of-range status")
	}
	if got := truncate("abcdefgh", 6); got != "abc..." {
		t.Errorf("unexpected truncation %q", got)
	}
	if got := truncate("short", 6); got != "short" {
		t.Errorf("unexpected truncation %q", got)
	}

	base := time.Unix(1000, 0)
	if got := elapsed(&row{}, base); got != "-" {
		t.Errorf("expected - for pending row, got %q", got)
	}
	r := &row{started: base, finished: base.Add(1500 * time.Millisecond)}
	if got := elapsed(r, base.Add(time.Hour)); got != "1.5s" {
		t.Errorf("expected 1.5s, got %q", got)
	}
	running := &row{started: base}
	if got := elapsed(running, base.Add(2*time.Second)); got != "2s" {
		t.Errorf("expected 2s, got %q", got)
	}
}
