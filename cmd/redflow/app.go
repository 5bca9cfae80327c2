package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
	"github.com/Wilhelmroentgen/REDFLOW/internal/database"
	rflog "github.com/Wilhelmroentgen/REDFLOW/internal/log"
	"github.com/Wilhelmroentgen/REDFLOW/internal/observer"
	"github.com/Wilhelmroentgen/REDFLOW/internal/pipeline"
	"github.com/Wilhelmroentgen/REDFLOW/internal/playbook"
	"github.com/Wilhelmroentgen/REDFLOW/internal/registry"
	"github.com/Wilhelmroentgen/REDFLOW/internal/shell"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
	"github.com/Wilhelmroentgen/REDFLOW/internal/steps"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// keyPlaybook records the playbook name in the run state for the report.
const keyPlaybook = "playbook"

// app wires the collaborators shared by run and resume.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *snapshot.Store
	db     *database.RunDB
	exec   *pipeline.Executor
	out    io.Writer
	errOut io.Writer
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// loadConfig builds the layered configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, os.Environ())
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg.Verbose = getVerboseFlag(cmd)
	return cfg, nil
}

// setupLogger installs the redacting logger as the default.
func setupLogger(w io.Writer, verbose bool) *slog.Logger {
	logger := rflog.NewLogger(w, verbose)
	slog.SetDefault(logger)
	return logger
}

// newApp opens the run index and builds the executor. The index is
// optional: when it cannot be opened runs proceed without it.
func newApp(cmd *cobra.Command, cfg *config.Config) (*app, error) {
	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)
	a := &app{
		cfg:    cfg,
		logger: logger,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}

	storeOpts := []snapshot.Option{snapshot.WithLogger(logger)}
	if cfg.DBPath != "" {
		opts := database.DefaultOptions()
		opts.Logger = logger
		db, err := database.Open(cfg.DBPath, opts)
		if err != nil {
			logger.Warn("run index unavailable", "path", cfg.DBPath, "error", err)
		} else {
			a.db = db
			storeOpts = append(storeOpts, snapshot.WithRecorder(db))
		}
	}
	a.store = snapshot.NewStore(cfg.RunsDir, storeOpts...)

	reg := registry.New()
	err := steps.Register(reg, steps.Deps{
		Store:  a.store,
		Runner: shell.NewRunner(shell.WithLogger(logger)),
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.exec = pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithStore(a.store),
		pipeline.WithRegistry(reg),
	)
	return a, nil
}

// Close releases the run index.
func (a *app) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close run index", "error", err)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// liveEnabled reports whether the live table can be drawn on w.
func liveEnabled(w io.Writer, want bool) bool {
	if !want {
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// execute runs plan over st, keeping the run index and observers in step
// with the executor. live draws the progress table on the error stream.
func (a *app) execute(ctx context.Context, plan *playbook.Plan, st state.State, live bool) (state.State, error) {
	runID := st.RunID()
	runDir, err := a.store.RunDir(runID)
	if err != nil {
		return st, fmt.Errorf("failed to create run directory: %w", err)
	}
	st[keyPlaybook] = plan.Name()

	if a.db != nil {
		err := a.db.CreateRun(ctx, database.Run{
			RunID:     runID,
			Target:    st.Target(),
			Playbook:  plan.Name(),
			Status:    database.StatusRunning,
			RunDir:    runDir,
			StartedAt: time.Now(),
		})
		if err != nil {
			a.logger.Warn("failed to index run", "run_id", runID, "error", err)
		}
	}

	observers := []observer.Observer{observer.NewLogObserver(a.logger, runID)}
	if a.db != nil {
		observers = append(observers, a.db.Observer(runID))
	}
	if live {
		view := observer.NewLive(a.errOut, plan.StepIDs(),
			observer.WithTitle(fmt.Sprintf("%s  %s  (%s)", runID, st.Target(), plan.Name())))
		view.Start(ctx)
		defer view.Stop()
		observers = append(observers, view)
	}

	final, err := a.exec.Run(ctx, plan, st, pipeline.WithObserver(observer.Multi(observers...)))

	if a.db != nil {
		status := database.StatusCompleted
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = database.StatusInterrupted
		case err != nil:
			status = database.StatusFailed
		}
		errCount := 0
		if final != nil {
			errCount = len(final.Errors())
		}
		if ferr := a.db.FinishRun(context.Background(), runID, status, errCount); ferr != nil {
			a.logger.Warn("failed to finish indexed run", "run_id", runID, "error", ferr)
		}
	}
	return final, err
}

// printSummary prints where the run's results live.
func (a *app) printSummary(st state.State) {
	runDir := filepath.Join(a.store.Root(), st.RunID())
	report := filepath.Join(runDir, "report.md")
	if _, err := os.Stat(report); err != nil {
		report = "(not generated)"
	}
	fmt.Fprintf(a.out, "%-9s %s\n", "Run ID:", st.RunID())
	fmt.Fprintf(a.out, "%-9s %s\n", "Target:", st.Target())
	fmt.Fprintf(a.out, "%-9s %s\n", "Folder:", runDir)
	fmt.Fprintf(a.out, "%-9s %s\n", "Report:", report)
	if n := len(st.Errors()); n > 0 {
		fmt.Fprintf(a.out, "%-9s %d\n", "Errors:", n)
	}
}
