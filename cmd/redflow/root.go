package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitInterrupted is the conventional status for SIGINT.
const exitInterrupted = 130

// exitError carries a specific process exit status.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// NewRootCmd creates the root command for redflow.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redflow",
		Short: "Resumable reconnaissance pipelines",
		Long: `redflow runs reconnaissance playbooks against domains and IPs.

A playbook declares steps (whois, subdomain enumeration, DNS resolution,
HTTP probing, port scans) and the edges between them. Every step's output is
stored in a run directory together with a state checkpoint, so a run that
was interrupted can be resumed with "redflow resume <run-id>".`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .redflow in current or home directory)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewResumeCmd())
	cmd.AddCommand(NewShowCmd())
	cmd.AddCommand(NewRunsCmd())
	cmd.AddCommand(NewPlaybooksCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	err := NewRootCmd().Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCode(err))
}

// exitCode maps an error returned by a command to a process status.
func exitCode(err error) int {
	var ee *exitError
	switch {
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return 1
	}
}
