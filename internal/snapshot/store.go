package snapshot

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/blake2b"

	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// Standard checkpoint names.
const (
	NameInit        = "state_init"
	NameFinal       = "state_final"
	NameInterrupted = "state_interrupted"

	// ArtifactsDirName holds raw tool output inside a run directory.
	ArtifactsDirName = "artifacts"

	// GraphsDirName holds rendered charts inside a run directory.
	GraphsDirName = "graphs"

	checkpointPrefix = "state_"
	checkpointExt    = ".json"
)

// DefaultRetryBudget bounds the time spent retrying a failed write.
const DefaultRetryBudget = time.Second

// ErrDigestMismatch is returned by Verify when a checkpoint file no longer
// matches the digest recorded when it was written.
var ErrDigestMismatch = errors.New("checkpoint digest mismatch")

// AfterStep returns the checkpoint name written after a successful step.
func AfterStep(stepID string) string {
	return checkpointPrefix + "after_" + stepID
}

// AfterStepError returns the checkpoint name written after a failed step.
func AfterStepError(stepID string) string {
	return AfterStep(stepID) + "_error"
}

// Checkpoint describes a persisted snapshot.
type Checkpoint struct {
	RunID     string
	Name      string
	Path      string
	Digest    string
	Size      int64
	WrittenAt time.Time
}

// Written reports whether the checkpoint reached disk.
func (c Checkpoint) Written() bool {
	return c.Path != ""
}

// Recorder receives every checkpoint the store writes, e.g. a run index.
type Recorder interface {
	RecordCheckpoint(ctx context.Context, cp Checkpoint) error
}

// Store writes and reads checkpoints below a root directory.
type Store struct {
	root        string
	logger      *slog.Logger
	recorder    Recorder
	retryBudget time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRecorder registers a Recorder notified after each checkpoint.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// WithRetryBudget overrides DefaultRetryBudget. Zero disables retries.
func WithRetryBudget(d time.Duration) Option {
	return func(s *Store) {
		s.retryBudget = d
	}
}

// NewStore creates a Store rooted at root.
func NewStore(root string, opts ...Option) *Store {
	s := &Store{
		root:        root,
		retryBudget: DefaultRetryBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Root returns the directory holding all runs.
func (s *Store) Root() string {
	return s.root
}

// RunDir returns the directory of a run, creating it together with its
// artifacts and graphs subdirectories.
func (s *Store) RunDir(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	dir := filepath.Join(s.root, runID)
	for _, d := range []string{dir, filepath.Join(dir, ArtifactsDirName), filepath.Join(dir, GraphsDirName)} {
		if err := os.MkdirAll(d, 0750); err != nil {
			return "", fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return dir, nil
}

// ArtifactsDir returns the artifacts directory of a run without creating it.
func (s *Store) ArtifactsDir(runID string) string {
	return filepath.Join(s.root, runID, ArtifactsDirName)
}

// Path returns the file path of the named checkpoint.
func (s *Store) Path(runID, name string) string {
	return filepath.Join(s.root, runID, name+checkpointExt)
}

// Write persists st under name for runID. Transient fields are dropped
// before encoding. Failures are logged and yield a zero Checkpoint; Write
// never returns an error because checkpoints must not abort a run.
func (s *Store) Write(ctx context.Context, runID, name string, st state.State) Checkpoint {
	data, err := encode(st)
	if err != nil {
		s.logger.Error("failed to encode checkpoint",
			"run_id", runID,
			"name", name,
			"error", err,
		)
		return Checkpoint{}
	}

	dir, err := s.RunDir(runID)
	if err != nil {
		s.logger.Error("failed to prepare checkpoint directory",
			"run_id", runID,
			"name", name,
			"error", err,
		)
		return Checkpoint{}
	}
	path := filepath.Join(dir, name+checkpointExt)

	if err := s.retry(func() error { return writeFileAtomic(path, data, 0600) }); err != nil {
		s.logger.Error("failed to write checkpoint",
			"run_id", runID,
			"name", name,
			"path", path,
			"error", err,
		)
		return Checkpoint{}
	}

	cp := Checkpoint{
		RunID:     runID,
		Name:      name,
		Path:      path,
		Digest:    Digest(data),
		Size:      int64(len(data)),
		WrittenAt: time.Now().UTC(),
	}
	s.logger.Debug("checkpoint written", "run_id", runID, "name", name, "path", path)

	if s.recorder != nil {
		// An interrupted run still records its last checkpoint.
		if err := s.recorder.RecordCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
			s.logger.Warn("failed to record checkpoint",
				"run_id", runID,
				"name", name,
				"error", err,
			)
		}
	}
	return cp
}

// Read loads the checkpoint at path. A missing or malformed file yields an
// empty, non-nil State.
func (s *Store) Read(path string) state.State {
	data, err := os.ReadFile(path) //nolint:gosec // checkpoint paths come from the store or the user
	if err != nil {
		s.logger.Debug("checkpoint not readable", "path", path, "error", err)
		return state.State{}
	}
	var st state.State
	if err := json.Unmarshal(data, &st); err != nil || st == nil {
		s.logger.Warn("checkpoint is malformed", "path", path, "error", err)
		return state.State{}
	}
	return st
}

// Latest returns the most recently written checkpoint of a run, or "" when
// the run has none.
func (s *Store) Latest(runID string) string {
	paths := s.checkpointPaths(runID)
	if len(paths) == 0 {
		return ""
	}
	return paths[len(paths)-1]
}

// Checkpoints returns the checkpoint names of a run, oldest first.
func (s *Store) Checkpoints(runID string) []string {
	paths := s.checkpointPaths(runID)
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = strings.TrimSuffix(filepath.Base(p), checkpointExt)
	}
	return names
}

// checkpointPaths lists checkpoint files by modification time, ties broken
// by name.
func (s *Store) checkpointPaths(runID string) []string {
	matches, err := filepath.Glob(filepath.Join(s.root, runID, checkpointPrefix+"*"+checkpointExt))
	if err != nil || len(matches) == 0 {
		return nil
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	cands := make([]candidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{path: m, mod: info.ModTime()})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].mod.Equal(cands[j].mod) {
			return cands[i].path < cands[j].path
		}
		return cands[i].mod.Before(cands[j].mod)
	})
	paths := make([]string, len(cands))
	for i, c := range cands {
		paths[i] = c.path
	}
	return paths
}

// Verify checks that the file behind cp still matches its recorded digest.
func (s *Store) Verify(cp Checkpoint) error {
	data, err := os.ReadFile(cp.Path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if got := Digest(data); got != cp.Digest {
		return fmt.Errorf("%w: %s", ErrDigestMismatch, cp.Path)
	}
	return nil
}

// WriteArtifact atomically stores raw tool output in the run's artifacts
// directory and returns its path.
func (s *Store) WriteArtifact(runID, filename string, content []byte) (string, error) {
	return s.writeRunFile(runID, ArtifactsDirName, filename, content)
}

// WriteGraph atomically stores a rendered chart in the run's graphs
// directory and returns its path.
func (s *Store) WriteGraph(runID, filename string, content []byte) (string, error) {
	return s.writeRunFile(runID, GraphsDirName, filename, content)
}

// WriteFile atomically stores a file such as report.md at the top of the
// run directory and returns its path.
func (s *Store) WriteFile(runID, filename string, content []byte) (string, error) {
	return s.writeRunFile(runID, "", filename, content)
}

func (s *Store) writeRunFile(runID, subdir, filename string, content []byte) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	dir, err := s.RunDir(runID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, subdir, filename)
	if err := writeFileAtomic(path, content, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// ListArtifacts returns the artifact file names of a run in sorted order.
func (s *Store) ListArtifacts(runID string) ([]string, error) {
	entries, err := os.ReadDir(s.ArtifactsDir(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// retry runs op, retrying transient failures within the retry budget.
func (s *Store) retry(op func() error) error {
	if s.retryBudget <= 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = s.retryBudget
	return backoff.Retry(op, backoff.WithMaxRetries(b, 3))
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encode(st state.State) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st.Persistable()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
