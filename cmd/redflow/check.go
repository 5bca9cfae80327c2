package main

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
	"github.com/Wilhelmroentgen/REDFLOW/internal/playbook"
	"github.com/Wilhelmroentgen/REDFLOW/internal/shell"
	"github.com/Wilhelmroentgen/REDFLOW/internal/steps"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// exitMissingTools is returned when required tools are not installed.
const exitMissingTools = 2

// versionTimeout bounds a single version query.
const versionTimeout = 10 * time.Second

// versionArgs are the flags that make a tool print its version.
// Tools without an entry are not queried.
var versionArgs = map[string]string{
	"subfinder": "-version",
	"amass":     "-version",
	"dnsx":      "-version",
	"httpx":     "-version",
	"naabu":     "-version",
	"tlsx":      "-version",
	"nuclei":    "-version",
	"ffuf":      "-V",
	"nmap":      "--version",
	"whatweb":   "--version",
	"wafw00f":   "--version",
	"gowitness": "version",
	"dig":       "-v",
}

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [tool...]",
		Short: "Verify that third-party tools are installed",
		Long: `Check looks up every known tool (or only the given ones) on PATH, honoring
the binaries configured under "tools:" and REDFLOW_TOOL_<NAME>, and prints the
version of each one it finds. It exits with status 2 when a tool is missing.

Examples:
  redflow check
  redflow check subfinder httpx
  redflow check --extra jq --extra gau`,
		RunE: runCheckCmd,
	}

	cmd.Flags().StringSlice("extra", nil, "Additional binaries to verify")

	return cmd
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	extra, err := cmd.Flags().GetStringSlice("extra")
	if err != nil {
		return err
	}
	setupLogger(cmd.ErrOrStderr(), cfg.Verbose)

	names := args
	if len(names) == 0 {
		names = cfg.ToolNames()
	}
	names = append(slices.Clone(names), extra...)
	slices.Sort(names)
	names = slices.Compact(names)

	missing := checkTools(cmd.OutOrStdout(), cfg, names)
	if len(missing) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nSome tools are missing. Install them or adjust your PATH.")
		return &exitError{code: exitMissingTools, err: fmt.Errorf("missing tools: %s", strings.Join(missing, ", "))}
	}
	return nil
}

// checkTools prints one line per tool and returns the missing ones.
func checkTools(w io.Writer, cfg *config.Config, names []string) []string {
	ok := color.New(color.FgGreen).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	var missing []string
	fmt.Fprintln(w, "Checking tools on PATH:")
	for _, name := range names {
		bin := cfg.Tool(name)
		path, err := lookPath(bin)
		if err != nil {
			fmt.Fprintf(w, "  %s %s  (not found)\n", bad("✗"), name)
			missing = append(missing, name)
			continue
		}
		line := fmt.Sprintf("  %s %s  ->  %s", ok("✓"), name, path)
		if v := toolVersion(bin, name); v != "" {
			line += "  (" + v + ")"
		}
		fmt.Fprintln(w, line)
	}
	return missing
}

// lookPath resolves the executable of a configured binary, which may carry
// leading arguments.
func lookPath(bin string) (string, error) {
	fields := strings.Fields(bin)
	if len(fields) == 0 {
		return "", errors.New("empty binary")
	}
	return exec.LookPath(fields[0])
}

// toolVersion returns the first output line of the tool's version query.
func toolVersion(bin, name string) string {
	flag, ok := versionArgs[name]
	if !ok {
		return ""
	}
	res, err := shell.RunSync(bin+" "+flag, versionTimeout)
	if err != nil || res.TimedOut() {
		return ""
	}
	for _, out := range []string{res.Stdout, res.Stderr} {
		for _, l := range strings.Split(out, "\n") {
			if l = strings.TrimSpace(l); l != "" {
				return l
			}
		}
	}
	return ""
}

// planTools returns the tools the steps of plan invoke, sorted.
func planTools(plan *playbook.Plan) []string {
	var tools []string
	for _, s := range plan.Spec().Steps {
		switch s.Impl {
		case steps.ImplExec:
			if t, ok := s.Params["tool"].(string); ok && t != "" {
				tools = append(tools, t)
			}
		case steps.ImplWhois:
			tools = append(tools, "whois")
		}
	}
	slices.Sort(tools)
	return slices.Compact(tools)
}

// missingTools returns the tools of plan that cannot be found.
func missingTools(cfg *config.Config, plan *playbook.Plan) []string {
	var missing []string
	for _, t := range planTools(plan) {
		if _, err := lookPath(cfg.Tool(t)); err != nil {
			missing = append(missing, t)
		}
	}
	return missing
}
