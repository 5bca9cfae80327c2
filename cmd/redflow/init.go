package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/redflow.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .redflow configuration file",
		Long: `Init writes a commented .redflow configuration file.

The generated file documents:
- Binaries used for each tool
- Per-tool timeouts
- Run defaults such as the playbook and batch size

Examples:
  # Create .redflow in the current directory
  redflow init

  # Create the file at a specific path
  redflow init -o ~/.redflow

  # Overwrite an existing file
  redflow init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/redflow.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Tool binaries and timeouts")
	fmt.Fprintln(out, "  - The default playbook and batch size")
	return nil
}
