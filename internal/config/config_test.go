package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// TestNewConfig documents the defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	if cfg.Playbook != "recon-lite" {
		t.Errorf("expected default playbook recon-lite, got %q", cfg.Playbook)
	}
	if cfg.DefaultTimeout != 900*time.Second {
		t.Errorf("expected default timeout 900s, got %v", cfg.DefaultTimeout)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("expected batch size 1, got %d", cfg.BatchSize)
	}
	if !cfg.Live || !cfg.CheckTools {
		t.Error("expected live view and tool check to be enabled by default")
	}
	if filepath.Base(cfg.RunsDir) != "runs" || filepath.Base(filepath.Dir(cfg.RunsDir)) != AppName {
		t.Errorf("unexpected runs dir %q", cfg.RunsDir)
	}
	if filepath.Base(cfg.DBPath) != IndexFileName {
		t.Errorf("unexpected db path %q", cfg.DBPath)
	}

	t.Run("tool timeouts", func(t *testing.T) {
		t.Parallel()

		tests := map[string]time.Duration{
			"whois":   120 * time.Second,
			"nmap":    3600 * time.Second,
			"wafw00f": 10 * time.Second,
			"unknown": 900 * time.Second,
		}
		for tool, want := range tests {
			if got := cfg.Timeout(tool); got != want {
				t.Errorf("%s: expected %v, got %v", tool, want, got)
			}
		}
	})

	t.Run("tool binaries default to their name", func(t *testing.T) {
		t.Parallel()

		if got := cfg.Tool("nmap"); got != "nmap" {
			t.Errorf("expected nmap, got %q", got)
		}
	})
}

// TestConfigValidate tests the Validate method, one rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Targets = []string{"example.com"}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "valid config returns nil", mutate: func(*Config) {}},
		{name: "no targets", mutate: func(c *Config) { c.Targets = nil }, want: ErrNoTarget},
		{name: "empty playbook", mutate: func(c *Config) { c.Playbook = "" }, want: ErrNoPlaybook},
		{name: "empty runs dir", mutate: func(c *Config) { c.RunsDir = "" }, want: ErrNoRunsDir},
		{name: "zero default timeout", mutate: func(c *Config) { c.DefaultTimeout = 0 }, want: ErrInvalidTimeout},
		{name: "negative tool timeout", mutate: func(c *Config) { c.Timeouts["nmap"] = -time.Second }, want: ErrInvalidTimeout},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, want: ErrInvalidBatchSize},
		{
			name:   "missing allowlist",
			mutate: func(c *Config) { c.Allowlist = filepath.Join(os.TempDir(), "redflow-does-not-exist.yaml") },
			want:   ErrAllowlistNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestApplyEnv tests REDFLOW_* overrides.
func TestApplyEnv(t *testing.T) {
	t.Parallel()

	t.Run("overrides tools, timeouts and dirs", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		err := cfg.ApplyEnv([]string{
			"PATH=/usr/bin",
			"REDFLOW_TOOL_NMAP=/opt/nmap/bin/nmap",
			"REDFLOW_TIMEOUT_NMAP=7200",
			"REDFLOW_TIMEOUT=60",
			"REDFLOW_RUNS_DIR=/data/runs",
			"REDFLOW_REPORT_TITLE=Acme",
			"REDFLOW_DB=/data/index.db",
			"REDFLOW_PLAYBOOKS_DIR=/data/playbooks",
			"REDFLOW_TOOL_HTTPX=",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Tool("nmap") != "/opt/nmap/bin/nmap" {
			t.Errorf("unexpected nmap binary %q", cfg.Tool("nmap"))
		}
		if cfg.Tool("httpx") != "httpx" {
			t.Errorf("empty override must be ignored, got %q", cfg.Tool("httpx"))
		}
		if cfg.Timeout("nmap") != 2*time.Hour {
			t.Errorf("unexpected nmap timeout %v", cfg.Timeout("nmap"))
		}
		if cfg.Timeout("unknown") != time.Minute {
			t.Errorf("unexpected default timeout %v", cfg.Timeout("unknown"))
		}
		if cfg.Timeout("whois") != 120*time.Second {
			t.Errorf("per-tool default must survive REDFLOW_TIMEOUT, got %v", cfg.Timeout("whois"))
		}
		if cfg.RunsDir != "/data/runs" || cfg.ReportTitle != "Acme" {
			t.Errorf("unexpected dirs/title %q %q", cfg.RunsDir, cfg.ReportTitle)
		}
		if cfg.DBPath != "/data/index.db" || cfg.PlaybooksDir != "/data/playbooks" {
			t.Errorf("unexpected index/playbooks %q %q", cfg.DBPath, cfg.PlaybooksDir)
		}
	})

	t.Run("rejects malformed timeouts", func(t *testing.T) {
		t.Parallel()

		for _, kv := range []string{"REDFLOW_TIMEOUT=soon", "REDFLOW_TIMEOUT_NMAP=-5"} {
			if err := NewConfig().ApplyEnv([]string{kv}); !errors.Is(err, ErrInvalidTimeout) {
				t.Errorf("%s: expected ErrInvalidTimeout, got %v", kv, err)
			}
		}
	})
}

// TestToolNames tests tool enumeration.
func TestToolNames(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.Tools["nuclei"] = "/usr/local/bin/nuclei"

	names := cfg.ToolNames()
	if !slices.IsSorted(names) {
		t.Errorf("expected sorted names, got %v", names)
	}
	for _, want := range []string{"nuclei", "nmap", "whois"} {
		if !slices.Contains(names, want) {
			t.Errorf("expected %s in %v", want, names)
		}
	}
}
