package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
	"github.com/Wilhelmroentgen/REDFLOW/internal/pipeline"
	"github.com/Wilhelmroentgen/REDFLOW/internal/playbook"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
	"github.com/Wilhelmroentgen/REDFLOW/internal/target"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <target|file>...",
		Short: "Run a playbook against one or more targets",
		Long: `Run executes a playbook against each target. Every target gets a new run
id and its own run directory holding state checkpoints, raw tool output
under artifacts/, charts under graphs/ and report.md.

A target is a domain or an IP. An argument naming an existing file is read
as one target per line; blank lines and lines starting with '#' are ignored.

Examples:
  # Quick recon of one domain
  redflow run example.com

  # Full playbook, four targets at a time
  redflow run -p recon-full --batch 4 targets.txt

  # Use a playbook file and copy a scope file into the run directory
  redflow run -p ./my-playbook.yaml --allowlist scope.yaml example.com

  # Reuse artifacts left by an earlier attempt
  redflow run --resume example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRunCmd,
	}

	cmd.Flags().StringP("playbook", "p", config.DefaultPlaybook,
		"Built-in playbook name, user playbook name, or path to a playbook file")
	cmd.Flags().Bool("resume", false, "Reuse artifacts from earlier attempts when present")
	cmd.Flags().Bool("force", false, "Re-run tools even when --resume finds artifacts")
	cmd.Flags().StringP("allowlist", "a", "", "Scope file copied into each run directory")
	cmd.Flags().Bool("check-tools", true, "Verify that the playbook's tools are installed before running")
	cmd.Flags().Bool("no-check-tools", false, "Skip the tool check")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of targets run concurrently")
	cmd.Flags().Bool("no-live", false, "Disable the live progress table")

	return cmd
}

// applyRunFlags overrides configuration with the flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("playbook") {
		if cfg.Playbook, err = flags.GetString("playbook"); err != nil {
			return err
		}
	}
	if flags.Changed("batch") {
		if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
			return err
		}
	}
	if flags.Changed("check-tools") {
		if cfg.CheckTools, err = flags.GetBool("check-tools"); err != nil {
			return err
		}
	}
	noCheck, err := flags.GetBool("no-check-tools")
	if err != nil {
		return err
	}
	if noCheck {
		cfg.CheckTools = false
	}
	noLive, err := flags.GetBool("no-live")
	if err != nil {
		return err
	}
	if noLive {
		cfg.Live = false
	}
	if cfg.Resume, err = flags.GetBool("resume"); err != nil {
		return err
	}
	if cfg.Force, err = flags.GetBool("force"); err != nil {
		return err
	}
	if cfg.Allowlist, err = flags.GetString("allowlist"); err != nil {
		return err
	}
	return nil
}

// expandTargets normalizes every argument, reading target files.
func expandTargets(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, arg := range args {
		raw, err := target.Expand(arg)
		if err != nil {
			return nil, err
		}
		for _, r := range raw {
			t, err := target.Normalize(r)
			if err != nil {
				return nil, err
			}
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}
	if cfg.Targets, err = expandTargets(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	plan, err := playbook.Load(cfg.Playbook, cfg.PlaybooksDir)
	if err != nil {
		return err
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.CheckTools {
		if missing := missingTools(cfg, plan); len(missing) > 0 {
			for _, m := range missing {
				fmt.Fprintf(a.errOut, "missing tool: %s\n", m)
			}
			return &exitError{code: exitMissingTools, err: errors.New("some tools are missing; install them or pass --no-check-tools")}
		}
	}

	ctx, cancel := signalContext(a.logger)
	defer cancel()

	return a.runTargets(ctx, plan)
}

// runTargets runs plan once per configured target.
func (a *app) runTargets(ctx context.Context, plan *playbook.Plan) error {
	targets := a.cfg.Targets
	live := liveEnabled(a.errOut, a.cfg.Live) && (len(targets) == 1 || a.cfg.BatchSize == 1)
	start := time.Now()

	var mu sync.Mutex
	run := func(ctx context.Context, t string) (state.State, error) {
		st := state.New(t)
		st.SetFlags(a.cfg.Resume, a.cfg.Force)
		if err := a.prepareRun(ctx, st); err != nil {
			return st, err
		}

		final, err := a.execute(ctx, plan, st, live)

		mu.Lock()
		defer mu.Unlock()
		if final != nil {
			a.printSummary(final)
			fmt.Fprintln(a.out)
		}
		return final, err
	}

	results, err := pipeline.NewBatchRunner(run,
		pipeline.WithConcurrency(a.cfg.BatchSize),
		pipeline.WithBatchLogger(a.logger),
	).Run(ctx, targets)
	if err != nil {
		fmt.Fprintln(a.errOut, "Run interrupted by user.")
		return err
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			a.logger.Error("run failed", "target", r.Target, "error", r.Err)
		}
	}
	if len(targets) > 1 {
		fmt.Fprintf(a.out, "%d run(s) finished in %s\n", len(targets), time.Since(start).Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d run(s) failed", failed, len(targets))
	}
	return nil
}

// prepareRun creates the run directory, copies the scope file and writes
// the initial checkpoint.
func (a *app) prepareRun(ctx context.Context, st state.State) error {
	runID := st.RunID()
	if _, err := a.store.RunDir(runID); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	if a.cfg.Allowlist != "" {
		data, err := os.ReadFile(a.cfg.Allowlist)
		if err != nil {
			return fmt.Errorf("failed to read allowlist: %w", err)
		}
		if _, err := a.store.WriteFile(runID, config.AllowlistFileName, data); err != nil {
			return fmt.Errorf("failed to copy allowlist: %w", err)
		}
	}
	a.store.Write(ctx, runID, snapshot.NameInit, st)
	return nil
}
