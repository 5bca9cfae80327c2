package main

import (
	"fmt"

	"github.com/Wilhelmroentgen/REDFLOW/internal/playbook"
	"github.com/spf13/cobra"
)

// NewPlaybooksCmd creates the playbooks command.
func NewPlaybooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "playbooks",
		Short: "List available playbooks",
		Long: `Playbooks lists the playbooks embedded in redflow together with those found
in the user playbook directory ($XDG_CONFIG_HOME/redflow/playbooks). A user
playbook with the name of a built-in one replaces it.`,
		Args: cobra.NoArgs,
		RunE: runPlaybooksCmd,
	}
}

func runPlaybooksCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	names := playbook.List(cfg.PlaybooksDir)
	if len(names) == 0 {
		fmt.Fprintln(out, "No playbooks found.")
		return nil
	}
	fmt.Fprintln(out, "Available playbooks:")
	for _, name := range names {
		plan, err := playbook.Load(name, cfg.PlaybooksDir)
		if err != nil {
			fmt.Fprintf(out, "  - %s  (invalid: %v)\n", name, err)
			continue
		}
		fmt.Fprintf(out, "  - %s  (%d steps)\n", name, len(plan.StepIDs()))
	}
	return nil
}
