package steps

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
	"github.com/Wilhelmroentgen/REDFLOW/internal/registry"
	"github.com/Wilhelmroentgen/REDFLOW/internal/shell"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
	"github.com/Wilhelmroentgen/REDFLOW/internal/target"
)

// Implementation identifiers.
const (
	ImplExec            = "exec"
	ImplWhois           = "whois"
	ImplMergeSortUnique = "merge_sort_unique"
	ImplReport          = "report"
)

// KeyArtifacts lists the artifact files written by steps.
const KeyArtifacts = "artifacts"

// Deps are the collaborators shared by all implementations.
type Deps struct {
	// Store locates run directories and writes artifacts. Required.
	Store *snapshot.Store

	// Runner executes tools. Defaults to a runner using Logger.
	Runner *shell.Runner

	// Config supplies tool binaries, timeouts and the report title.
	// Defaults to config.NewConfig().
	Config *config.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// set is the bound form of Deps shared by the handlers.
type set struct {
	store  *snapshot.Store
	runner *shell.Runner
	cfg    *config.Config
	logger *slog.Logger
}

// Register adds every built-in implementation to reg.
func Register(reg *registry.Registry, d Deps) error {
	if d.Store == nil {
		return fmt.Errorf("%w: store", ErrMissingParam)
	}
	s := &set{store: d.Store, runner: d.Runner, cfg: d.Config, logger: d.Logger}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.runner == nil {
		s.runner = shell.NewRunner(shell.WithLogger(s.logger))
	}
	if s.cfg == nil {
		s.cfg = config.NewConfig()
	}

	for name, h := range map[string]registry.Handler{
		ImplExec:            s.exec,
		ImplWhois:           s.whois,
		ImplMergeSortUnique: s.mergeSortUnique,
		ImplReport:          s.report,
	} {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

// templateData is what command templates can reference.
type templateData struct {
	Target       string
	Root         string
	RunDir       string
	ArtifactsDir string
}

func (s *set) templateData(st state.State) (templateData, error) {
	runID := st.RunID()
	if runID == "" {
		return templateData{}, ErrNoRunID
	}
	runDir, err := s.store.RunDir(runID)
	if err != nil {
		return templateData{}, err
	}
	root := target.RootDomain(st.Target())
	if root == "" {
		root = st.Target()
	}
	return templateData{
		Target:       st.Target(),
		Root:         root,
		RunDir:       runDir,
		ArtifactsDir: s.store.ArtifactsDir(runID),
	}, nil
}

var funcs = template.FuncMap{"quote": quote}

func render(text string, data templateData) (string, error) {
	tmpl, err := template.New("args").Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: args: %w", ErrInvalidParam, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: args: %w", ErrInvalidParam, err)
	}
	return buf.String(), nil
}

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// quote makes s a single shell word.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// command joins the configured binary for tool and rendered args.
func (s *set) command(tool, args string) string {
	bin := s.cfg.Tool(tool)
	if args = strings.TrimSpace(args); args == "" {
		return bin
	}
	return bin + " " + args
}

// timeout returns the step override in params, or the configured bound.
func (s *set) timeout(tool string, params map[string]any) (time.Duration, error) {
	secs, ok, err := intParam(params, "timeout")
	if err != nil {
		return 0, err
	}
	if ok && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	return s.cfg.Timeout(tool), nil
}

// reusable returns a previous artifact when resuming without force.
func (s *set) reusable(st state.State, runID, name string) ([]byte, bool) {
	if name == "" || !st.Flag(state.FlagResume) || st.Flag(state.FlagForce) {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(s.store.ArtifactsDir(runID), name))
	if err != nil {
		return nil, false
	}
	return data, true
}

// saveArtifact writes content and lists it in the state.
func (s *set) saveArtifact(st state.State, name string, content []byte) error {
	if _, err := s.store.WriteArtifact(st.RunID(), name, content); err != nil {
		return err
	}
	addArtifact(st, name)
	return nil
}

func addArtifact(st state.State, name string) {
	list := st.Strings(KeyArtifacts)
	if !slices.Contains(list, name) {
		st.SetStrings(KeyArtifacts, append(list, name))
	}
}

// recordToolFailure appends a non-fatal error record for res.
func recordToolFailure(ctx context.Context, st state.State, impl string, res *shell.Result) {
	code := fmt.Sprintf("%s_%d", ErrExitStatus, res.ExitCode)
	if res.TimedOut() {
		code = ErrTimeout
	}
	st.AppendError(state.ErrorRecord{
		Step:   registry.StepID(ctx),
		Impl:   impl,
		Error:  code,
		Stderr: res.Stderr,
	})
}

// lines returns the trimmed non-empty lines of text.
func lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// union appends the values of add missing from base, keeping order.
func union(base, add []string) []string {
	seen := make(map[string]bool, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, v := range slices.Concat(base, add) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParam, key)
	}
	return s, nil
}

func intParam(params map[string]any, key string) (int, bool, error) {
	switch v := params[key].(type) {
	case nil:
		return 0, false, nil
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		return int(v), true, nil
	default:
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidParam, key)
	}
}

func boolParam(params map[string]any, key string) (bool, error) {
	switch v := params[key].(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	default:
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidParam, key)
	}
}
