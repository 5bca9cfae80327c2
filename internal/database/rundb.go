package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Wilhelmroentgen/REDFLOW/internal/observer"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
)

var (
	// ErrRunNotFound is returned when a run id is not in the index.
	ErrRunNotFound = errors.New("run not found")

	// ErrCheckpointNotFound is returned when a run has no recorded checkpoint.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// RunStatus is the lifecycle state of an indexed run.
type RunStatus string

// Run statuses.
const (
	StatusRunning     RunStatus = "running"
	StatusCompleted   RunStatus = "completed"
	StatusInterrupted RunStatus = "interrupted"
	StatusFailed      RunStatus = "failed"
)

// Step event kinds stored in step_events.
const (
	EventStart  = "start"
	EventFinish = "finish"
	EventFail   = "fail"
)

// Run is one row of the runs table.
type Run struct {
	RunID      string
	Target     string
	Playbook   string
	Status     RunStatus
	RunDir     string
	StartedAt  time.Time
	FinishedAt time.Time
	ErrorCount int
}

// StepEvent is one row of the step_events table.
type StepEvent struct {
	RunID   string
	Step    string
	Event   string
	Message string
	At      time.Time
}

// RunDB is the SQLite run index. It is safe for concurrent use.
type RunDB struct {
	db     *sql.DB
	dbPath string
	logger *slog.Logger
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool

	// Logger receives failures of the Observer returned by RunDB.Observer.
	Logger *slog.Logger
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the index at dbPath.
func Open(dbPath string, opts Options) (*RunDB, error) {
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath, logger: opts.Logger}
	if rdb.logger == nil {
		rdb.logger = slog.Default()
	}

	ctx := context.Background()
	if opts.EnableWAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := rdb.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Path returns the database file path.
func (r *RunDB) Path() string {
	return r.dbPath
}

// Close closes the database connection.
func (r *RunDB) Close() error {
	return r.db.Close()
}

func (r *RunDB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		playbook TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		run_dir TEXT,
		error_count INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);

	CREATE TABLE IF NOT EXISTS step_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		step TEXT NOT NULL,
		event TEXT NOT NULL,
		message TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run ON step_events(run_id);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		digest TEXT NOT NULL,
		size INTEGER NOT NULL,
		written_at TEXT NOT NULL,
		UNIQUE(run_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// CreateRun inserts a run, or marks an existing one as running again when
// it is resumed.
func (r *RunDB) CreateRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	query := `
	INSERT INTO runs (run_id, target, playbook, status, started_at, run_dir, error_count)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		playbook = excluded.playbook,
		status = excluded.status,
		run_dir = excluded.run_dir,
		finished_at = NULL
	`
	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.Target, run.Playbook, string(run.Status),
		formatTimestamp(run.StartedAt), run.RunDir, run.ErrorCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.RunID, err)
	}
	return nil
}

// FinishRun stores the final status of a run.
func (r *RunDB) FinishRun(ctx context.Context, runID string, status RunStatus, errorCount int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_count = ? WHERE run_id = ?`,
		string(status), formatTimestamp(time.Now()), errorCount, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `run_id, target, playbook, status, started_at, finished_at, run_dir, error_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
		runDir   sql.NullString
	)
	if err := s.Scan(&run.RunID, &run.Target, &run.Playbook, &status, &started, &finished, &runDir, &run.ErrorCount); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = parseTimestamp(started)
	if finished.Valid {
		run.FinishedAt = parseTimestamp(finished.String)
	}
	run.RunDir = runDir.String
	return run, nil
}

// GetRun returns one run.
func (r *RunDB) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (r *RunDB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RecordEvent appends a step event.
func (r *RunDB) RecordEvent(ctx context.Context, ev StepEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO step_events (run_id, step, event, message, at) VALUES (?, ?, ?, ?, ?)`,
		ev.RunID, ev.Step, ev.Event, ev.Message, formatTimestamp(ev.At),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// StepEvents returns the events of a run in the order they were recorded.
func (r *RunDB) StepEvents(ctx context.Context, runID string) ([]StepEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, step, event, message, at FROM step_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []StepEvent
	for rows.Next() {
		var (
			ev      StepEvent
			message sql.NullString
			at      string
		)
		if err := rows.Scan(&ev.RunID, &ev.Step, &ev.Event, &message, &at); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Message = message.String
		ev.At = parseTimestamp(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordCheckpoint stores the digest of a written checkpoint. A checkpoint
// rewritten under the same name replaces the previous row.
func (r *RunDB) RecordCheckpoint(ctx context.Context, cp snapshot.Checkpoint) error {
	query := `
	INSERT INTO checkpoints (run_id, name, path, digest, size, written_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, name) DO UPDATE SET
		path = excluded.path,
		digest = excluded.digest,
		size = excluded.size,
		written_at = excluded.written_at
	`
	_, err := r.db.ExecContext(ctx, query,
		cp.RunID, cp.Name, cp.Path, cp.Digest, cp.Size, formatTimestamp(cp.WrittenAt))
	if err != nil {
		return fmt.Errorf("failed to record checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

// LatestCheckpoint returns the most recently written checkpoint of a run.
func (r *RunDB) LatestCheckpoint(ctx context.Context, runID string) (*snapshot.Checkpoint, error) {
	var (
		cp      snapshot.Checkpoint
		written string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT run_id, name, path, digest, size, written_at FROM checkpoints
		WHERE run_id = ? ORDER BY written_at DESC, id DESC LIMIT 1`, runID,
	).Scan(&cp.RunID, &cp.Name, &cp.Path, &cp.Digest, &cp.Size, &written)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	cp.WrittenAt = parseTimestamp(written)
	return &cp, nil
}

// Observer returns an observer that records the step events of runID.
// Failures to record are logged and otherwise ignored.
func (r *RunDB) Observer(runID string) observer.Observer {
	record := func(step, event, message string) {
		ev := StepEvent{RunID: runID, Step: step, Event: event, Message: message}
		if err := r.RecordEvent(context.Background(), ev); err != nil {
			r.logger.Warn("failed to index step event", "run_id", runID, "step", step, "error", err)
		}
	}
	return observer.Funcs{
		Start:  func(step string) { record(step, EventStart, "") },
		Finish: func(step string) { record(step, EventFinish, "") },
		Fail:   func(step, message string) { record(step, EventFail, message) },
	}
}

// timestampFormat is fixed-width so that text ordering matches time ordering.
const timestampFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

// timestampFormats lists the accepted stored formats.
var timestampFormats = []string{
	timestampFormat,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
