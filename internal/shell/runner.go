package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const (
	// ExitCodeTimeout is the exit code reported when a command was killed
	// because its timeout expired or its context was cancelled.
	ExitCodeTimeout = -1

	// DefaultTimeout applies when a caller passes a non-positive timeout.
	DefaultTimeout = 900 * time.Second

	// DefaultWaitDelay bounds how long Run waits for output pipes after the
	// process exits or is killed. Descendants that escaped the process
	// group could otherwise hold the pipes open indefinitely.
	DefaultWaitDelay = 5 * time.Second
)

// Result is the outcome of one command.
type Result struct {
	// Command is the shell command line as given.
	Command string `json:"command"`

	// ExitCode is the process exit status, or ExitCodeTimeout.
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output, decoded permissively.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error, decoded permissively.
	Stderr string `json:"stderr"`
}

// TimedOut reports whether the command was killed by the runner.
func (r *Result) TimedOut() bool {
	return r.ExitCode == ExitCodeTimeout
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// runOptions holds per-call settings.
type runOptions struct {
	stdin *string
	env   map[string]string
	dir   string
}

// Option configures a single Run call.
type Option func(*runOptions)

// WithStdin feeds input to the command's standard input.
func WithStdin(input string) Option {
	return func(o *runOptions) {
		o.stdin = &input
	}
}

// WithEnv overrides environment variables on top of the current process
// environment.
func WithEnv(env map[string]string) Option {
	return func(o *runOptions) {
		o.env = env
	}
}

// WithDir sets the working directory of the command.
func WithDir(dir string) Option {
	return func(o *runOptions) {
		o.dir = dir
	}
}

// Runner executes shell commands with timeout and process-group control.
type Runner struct {
	logger    *slog.Logger
	waitDelay time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger used for command tracing.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.waitDelay = d
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		waitDelay: DefaultWaitDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run executes command and waits for it to finish, time out, or be
// cancelled through ctx. A non-zero exit status is returned as a Result,
// not as an error; the error return is reserved for failures to start the
// process at all.
func (r *Runner) Run(ctx context.Context, command string, timeout time.Duration, opts ...Option) (*Result, error) {
	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name, args := shellCommand(command)
	cmd := exec.CommandContext(runCtx, name, args...) //nolint:gosec // running tool commands is the purpose of this package
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = r.waitDelay
	cmd.Dir = o.dir
	cmd.Env = mergeEnv(os.Environ(), o.env)
	if o.stdin != nil {
		cmd.Stdin = strings.NewReader(*o.stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	r.logger.Debug("starting command", "command", command, "timeout", timeout)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command %q: %w", command, err)
	}
	waitErr := cmd.Wait()

	if waitErr != nil && runCtx.Err() != nil {
		// The leader may already be gone while descendants keep running.
		_ = killProcessGroup(cmd) //nolint:errcheck // group may already be reaped

		msg := "Timeout after " + formatSeconds(timeout) + "s"
		if ctx.Err() != nil {
			msg = "Cancelled after " + formatSeconds(time.Since(start)) + "s"
		}
		r.logger.Warn("command killed",
			"command", command,
			"reason", msg,
		)
		return &Result{
			Command:  command,
			ExitCode: ExitCodeTimeout,
			Stdout:   "",
			Stderr:   msg,
		}, nil
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = exitStatus(cmd.ProcessState)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			return nil, fmt.Errorf("failed to wait for command %q: %w", command, waitErr)
		}
	}

	r.logger.Debug("command finished",
		"command", command,
		"exit_code", exitCode,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return &Result{
		Command:  command,
		ExitCode: exitCode,
		Stdout:   decode(stdout.Bytes()),
		Stderr:   decode(stderr.Bytes()),
	}, nil
}

// RunSync is Run without a caller context, for one-off helpers that live
// outside the pipeline. Timeout handling and process-group cleanup are
// identical.
func (r *Runner) RunSync(command string, timeout time.Duration, opts ...Option) (*Result, error) {
	return r.Run(context.Background(), command, timeout, opts...)
}

// Run executes command with a default Runner.
func Run(ctx context.Context, command string, timeout time.Duration, opts ...Option) (*Result, error) {
	return NewRunner().Run(ctx, command, timeout, opts...)
}

// RunSync executes command with a default Runner and no caller context.
func RunSync(command string, timeout time.Duration, opts ...Option) (*Result, error) {
	return NewRunner().RunSync(command, timeout, opts...)
}

// mergeEnv returns base with overrides applied. Later entries win in
// exec, but duplicates are dropped to keep the environment readable.
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range overrides {
		out = append(out, k+"="+v)
	}
	return out
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
