package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wilhelmroentgen/REDFLOW/internal/playbook"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
	"github.com/spf13/cobra"
)

var (
	errNoCheckpoint = errors.New("no checkpoint found for run")
	errNoTarget     = errors.New("checkpoint has no target; cannot resume")
)

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an interrupted run",
		Long: `Resume continues a run from its latest checkpoint. The checkpoint recorded
in the run index is used when its digest still matches the file on disk;
otherwise the newest state_*.json in the run directory is loaded.

The playbook is walked again from its entry step with the "resume" flag set,
so steps reuse the artifacts they already produced.

Examples:
  redflow resume 3f9c2a7b1d4e
  redflow resume 3f9c2a7b1d4e -p recon-full`,
		Args: cobra.ExactArgs(1),
		RunE: runResumeCmd,
	}

	cmd.Flags().StringP("playbook", "p", "", "Playbook override (default: the one the run used)")
	cmd.Flags().Bool("force", false, "Re-run tools even when artifacts exist")
	cmd.Flags().Bool("no-live", false, "Disable the live progress table")

	return cmd
}

func runResumeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	noLive, err := cmd.Flags().GetBool("no-live")
	if err != nil {
		return err
	}
	if noLive {
		cfg.Live = false
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	override, err := cmd.Flags().GetString("playbook")
	if err != nil {
		return err
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runID := args[0]
	st, err := a.loadCheckpoint(context.Background(), runID)
	if err != nil {
		return err
	}
	st.SetFlags(true, force)

	name := override
	if name == "" {
		name = st.String(keyPlaybook)
	}
	if name == "" {
		name = cfg.Playbook
	}
	plan, err := playbook.Load(name, cfg.PlaybooksDir)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	final, err := a.execute(ctx, plan, st, liveEnabled(a.errOut, cfg.Live))
	if final != nil {
		a.printSummary(final)
	}
	if err != nil {
		fmt.Fprintln(a.errOut, "Resume interrupted.")
	}
	return err
}

// loadCheckpoint returns the state to resume runID from.
func (a *app) loadCheckpoint(ctx context.Context, runID string) (state.State, error) {
	path := ""
	if a.db != nil {
		cp, err := a.db.LatestCheckpoint(ctx, runID)
		switch {
		case err != nil:
			a.logger.Debug("no indexed checkpoint", "run_id", runID, "error", err)
		case a.store.Verify(*cp) != nil:
			a.logger.Warn("indexed checkpoint changed on disk, falling back to newest file", "run_id", runID, "path", cp.Path)
		default:
			path = cp.Path
		}
	}
	if path == "" {
		path = a.store.Latest(runID)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: %s", errNoCheckpoint, runID)
	}

	st := a.store.Read(path)
	if st.RunID() == "" {
		st[state.KeyRunID] = runID
	}
	if st.Target() == "" {
		return nil, errNoTarget
	}
	a.logger.Info("resuming", "run_id", runID, "path", path)
	return st, nil
}
