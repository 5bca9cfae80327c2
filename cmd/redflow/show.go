package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
	"github.com/Wilhelmroentgen/REDFLOW/internal/database"
	"github.com/Wilhelmroentgen/REDFLOW/internal/report"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// defaultRunsLimit caps the runs listed by "redflow runs".
const defaultRunsLimit = 20

var errRunNotFound = errors.New("run not found")

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the results of a run",
		Long: `Show prints the paths of a run's report, checkpoints and artifacts, followed
by a summary of step outcomes, discovered assets and errors taken from its
latest checkpoint.

Examples:
  redflow show 3f9c2a7b1d4e
  redflow show --json 3f9c2a7b1d4e`,
		Args: cobra.ExactArgs(1),
		RunE: runShowCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Print the summary as JSON")
	cmd.Flags().Bool("state", false, "Include the full state in the JSON summary")

	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	withState, err := cmd.Flags().GetBool("state")
	if err != nil {
		return err
	}
	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)

	runID := args[0]
	store := snapshot.NewStore(cfg.RunsDir, snapshot.WithLogger(logger))
	runDir := filepath.Join(store.Root(), runID)
	if _, err := os.Stat(runDir); err != nil {
		return fmt.Errorf("%w in %s: %s", errRunNotFound, cfg.RunsDir, runID)
	}

	latest := store.Latest(runID)
	if latest == "" {
		return fmt.Errorf("%w: %s", errNoCheckpoint, runID)
	}
	artifacts, err := store.ListArtifacts(runID)
	if err != nil {
		return err
	}
	d := report.NewData(cfg.ReportTitle, store.Read(latest), store.Checkpoints(runID), artifacts)
	out := cmd.OutOrStdout()

	if asJSON {
		opts := []report.JSONWriterOption{report.WithPrettyPrint()}
		if withState {
			opts = append(opts, report.WithState())
		}
		_, err := report.NewJSONWriter(out, opts...).Write(d)
		return err
	}

	printRunPaths(out, runDir, latest, artifacts)
	if _, err := report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose)).Write(d); err != nil {
		return err
	}
	printIndexedEvents(cmd.Context(), out, cfg, runID)
	return nil
}

func printRunPaths(w io.Writer, runDir, latest string, artifacts []string) {
	reportPath := filepath.Join(runDir, "report.md")
	if _, err := os.Stat(reportPath); err != nil {
		reportPath = "(not generated)"
	}
	fmt.Fprintf(w, "%-11s %s\n", "Folder:", runDir)
	fmt.Fprintf(w, "%-11s %s\n", "Report:", reportPath)
	fmt.Fprintf(w, "%-11s %s\n", "State:", latest)

	if len(artifacts) == 0 {
		fmt.Fprintln(w, "\n(no artifacts)")
	} else {
		fmt.Fprintln(w, "\nArtifacts:")
		for _, a := range artifacts {
			fmt.Fprintf(w, "  - %s\n", filepath.Join(snapshot.ArtifactsDirName, a))
		}
	}

	graphs, _ := os.ReadDir(filepath.Join(runDir, snapshot.GraphsDirName)) //nolint:errcheck // missing dir means no graphs
	if len(graphs) > 0 {
		fmt.Fprintln(w, "\nGraphs:")
		for _, g := range graphs {
			fmt.Fprintf(w, "  - %s\n", g.Name())
		}
	}
	fmt.Fprintln(w)
}

// printIndexedEvents prints the step timeline recorded in the run index.
func printIndexedEvents(ctx context.Context, w io.Writer, cfg *config.Config, runID string) {
	db, ok := openIndexReadOnly(cfg)
	if !ok {
		return
	}
	defer db.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	events, err := db.StepEvents(ctx, runID)
	if err != nil || len(events) == 0 {
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Time", "Step", "Event", "Message"})
	for _, ev := range events {
		_ = table.Append([]string{ev.At.Local().Format(time.TimeOnly), ev.Step, ev.Event, truncate(ev.Message, 60)}) //nolint:errcheck // rendering errors surface on Render
	}
	if err := table.Render(); err != nil {
		fmt.Fprintf(w, "failed to render events: %v\n", err)
	}
}

// openIndexReadOnly opens an existing run index without creating one.
func openIndexReadOnly(cfg *config.Config) (*database.RunDB, bool) {
	if cfg.DBPath == "" {
		return nil, false
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(cfg.DBPath, opts)
	if err != nil {
		return nil, false
	}
	return db, true
}

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the run index",
		Args:  cobra.NoArgs,
		RunE:  runRunsCmd,
	}
	cmd.Flags().IntP("limit", "n", defaultRunsLimit, "Maximum number of runs to list")
	return cmd
}

func runRunsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	setupLogger(cmd.ErrOrStderr(), cfg.Verbose)

	out := cmd.OutOrStdout()
	db, ok := openIndexReadOnly(cfg)
	if !ok {
		fmt.Fprintln(out, "No runs indexed yet.")
		return nil
	}
	defer db.Close()

	runs, err := db.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs indexed yet.")
		return nil
	}
	return renderRuns(out, runs)
}

func renderRuns(w io.Writer, runs []database.Run) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Run ID", "Target", "Playbook", "Status", "Started", "Errors"})
	for _, r := range runs {
		row := []string{
			r.RunID,
			r.Target,
			r.Playbook,
			string(r.Status),
			r.StartedAt.Local().Format(time.DateTime),
			strconv.Itoa(r.ErrorCount),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
