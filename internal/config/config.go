package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "redflow"

	// DefaultPlaybook is executed when no playbook is named.
	DefaultPlaybook = "recon-lite"

	// DefaultTimeout bounds a tool that has no specific timeout.
	DefaultTimeout = 900 * time.Second

	// DefaultBatchSize is the number of targets run concurrently.
	// Recon tools are heavy, so targets run one at a time unless asked.
	DefaultBatchSize = 1

	// DefaultReportTitle is the H1 of the Markdown report.
	DefaultReportTitle = "RedFlow Recon Report"

	// AllowlistFileName is the name under which a scope file is copied
	// into the run directory.
	AllowlistFileName = "scope.yaml"

	// IndexFileName is the SQLite run index inside the data directory.
	IndexFileName = "redflow.db"
)

// Environment variables read by ApplyEnv.
const (
	EnvRunsDir       = "REDFLOW_RUNS_DIR"
	EnvDBPath        = "REDFLOW_DB"
	EnvPlaybooksDir  = "REDFLOW_PLAYBOOKS_DIR"
	EnvTimeout       = "REDFLOW_TIMEOUT"
	EnvToolPrefix    = "REDFLOW_TOOL_"
	EnvTimeoutPrefix = "REDFLOW_TIMEOUT_"
	EnvReportTitle   = "REDFLOW_REPORT_TITLE"
)

// KnownTools lists the external tools the built-in playbooks can call.
var KnownTools = []string{
	"whois", "amass", "subfinder", "assetfinder", "dnsx", "httpx", "naabu",
	"nmap", "whatweb", "wafw00f", "gowitness", "gau", "katana", "arjun",
	"ffuf", "tlsx", "dig",
}

// defaultTimeouts are the per-tool bounds applied when neither the config
// file nor the environment sets one.
var defaultTimeouts = map[string]time.Duration{
	"whois":       120 * time.Second,
	"amass":       900 * time.Second,
	"subfinder":   600 * time.Second,
	"assetfinder": 300 * time.Second,
	"dnsx":        600 * time.Second,
	"httpx":       900 * time.Second,
	"naabu":       900 * time.Second,
	"nmap":        3600 * time.Second,
	"whatweb":     300 * time.Second,
	"wafw00f":     10 * time.Second,
	"gowitness":   600 * time.Second,
	"gau":         240 * time.Second,
	"katana":      240 * time.Second,
	"arjun":       600 * time.Second,
	"ffuf":        300 * time.Second,
	"tlsx":        120 * time.Second,
	"idp":         300 * time.Second,
}

// Config holds all configuration options for a redflow invocation.
// It is populated once by the CLI and passed down explicitly.
type Config struct {
	// Targets are the domains or IPs to run against.
	Targets []string

	// Playbook is a built-in playbook name, a name found in PlaybooksDir,
	// or a path to a playbook file.
	Playbook string

	// RunsDir holds one directory per run.
	// Defaults to $XDG_DATA_HOME/redflow/runs.
	RunsDir string

	// DBPath is the SQLite run index. Empty disables the index.
	DBPath string

	// PlaybooksDir is searched for user playbooks before the built-in ones.
	PlaybooksDir string

	// Tools maps a tool name to the binary invoked for it.
	// Tools missing from the map run under their own name.
	Tools map[string]string

	// Timeouts maps a tool name to its execution bound.
	Timeouts map[string]time.Duration

	// DefaultTimeout applies to tools without an entry in Timeouts.
	DefaultTimeout time.Duration

	// BatchSize is the number of targets run concurrently.
	BatchSize int

	// Resume tells steps to reuse artifacts left by an earlier attempt.
	Resume bool

	// Force makes steps re-run their tools even when resuming.
	Force bool

	// Allowlist is an optional scope file copied into each run directory.
	Allowlist string

	// CheckTools verifies that every tool is on PATH before running.
	CheckTools bool

	// Live enables the live terminal table.
	Live bool

	// Verbose enables debug logging.
	Verbose bool

	// ReportTitle is the title of the Markdown report.
	ReportTitle string

	// ConfigFilePath is an explicit .redflow file. When empty, the
	// current and home directories are searched.
	ConfigFilePath string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Playbook:       DefaultPlaybook,
		RunsDir:        filepath.Join(XDGDataDir(), "runs"),
		DBPath:         filepath.Join(XDGDataDir(), IndexFileName),
		PlaybooksDir:   filepath.Join(XDGConfigDir(), "playbooks"),
		Tools:          make(map[string]string),
		Timeouts:       maps.Clone(defaultTimeouts),
		DefaultTimeout: DefaultTimeout,
		BatchSize:      DefaultBatchSize,
		CheckTools:     true,
		Live:           true,
		ReportTitle:    DefaultReportTitle,
	}
}

// XDGDataDir returns the XDG data directory for redflow.
// On Linux: ~/.local/share/redflow
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for redflow.
// On Linux: ~/.config/redflow
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Tool returns the binary configured for name.
func (c *Config) Tool(name string) string {
	if bin := c.Tools[name]; bin != "" {
		return bin
	}
	return name
}

// Timeout returns the execution bound configured for name.
func (c *Config) Timeout(name string) time.Duration {
	if d, ok := c.Timeouts[name]; ok && d > 0 {
		return d
	}
	return c.DefaultTimeout
}

// ToolNames returns every tool that has a binary or timeout configured,
// plus KnownTools, sorted.
func (c *Config) ToolNames() []string {
	seen := make(map[string]bool, len(KnownTools))
	for _, n := range KnownTools {
		seen[n] = true
	}
	for n := range c.Tools {
		seen[n] = true
	}
	names := slices.Collect(maps.Keys(seen))
	slices.Sort(names)
	return names
}

// ApplyEnv overrides values from REDFLOW_* variables in environ, given as
// "KEY=value" pairs like os.Environ returns.
func (c *Config) ApplyEnv(environ []string) error {
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}
		switch {
		case key == EnvRunsDir:
			c.RunsDir = value
		case key == EnvDBPath:
			c.DBPath = value
		case key == EnvPlaybooksDir:
			c.PlaybooksDir = value
		case key == EnvReportTitle:
			c.ReportTitle = value
		case key == EnvTimeout:
			d, err := parseSeconds(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			c.DefaultTimeout = d
		case strings.HasPrefix(key, EnvTimeoutPrefix):
			d, err := parseSeconds(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			c.Timeouts[envToolName(key, EnvTimeoutPrefix)] = d
		case strings.HasPrefix(key, EnvToolPrefix):
			c.Tools[envToolName(key, EnvToolPrefix)] = value
		}
	}
	return nil
}

// ApplyFile overrides values from a loaded .redflow file.
func (c *Config) ApplyFile(f *File) error {
	if f == nil {
		return nil
	}
	for name, bin := range f.Tools {
		c.Tools[strings.ToLower(name)] = bin
	}
	for name, secs := range f.Timeouts {
		if secs <= 0 {
			return fmt.Errorf("timeout for %s: %w", name, ErrInvalidTimeout)
		}
		c.Timeouts[strings.ToLower(name)] = time.Duration(secs) * time.Second
	}

	d := f.Defaults
	if d.Playbook != "" {
		c.Playbook = d.Playbook
	}
	if d.Batch != 0 {
		c.BatchSize = d.Batch
	}
	if d.Live != nil {
		c.Live = *d.Live
	}
	if d.CheckTools != nil {
		c.CheckTools = *d.CheckTools
	}
	if d.RunsDir != "" {
		c.RunsDir = expandHome(d.RunsDir)
	}
	if d.Timeout > 0 {
		c.DefaultTimeout = time.Duration(d.Timeout) * time.Second
	}
	if d.ReportTitle != "" {
		c.ReportTitle = d.ReportTitle
	}
	return nil
}

// Validate checks if the configuration is valid for a run.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Playbook == "" {
		return ErrNoPlaybook
	}
	if c.RunsDir == "" {
		return ErrNoRunsDir
	}
	if c.DefaultTimeout <= 0 {
		return ErrInvalidTimeout
	}
	for _, d := range c.Timeouts {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Allowlist != "" {
		if _, err := os.Stat(c.Allowlist); err != nil {
			return fmt.Errorf("%w: %s", ErrAllowlistNotFound, c.Allowlist)
		}
	}
	return nil
}

func envToolName(key, prefix string) string {
	return strings.ToLower(strings.TrimPrefix(key, prefix))
}

func parseSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, s)
	}
	return time.Duration(n) * time.Second, nil
}

func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
