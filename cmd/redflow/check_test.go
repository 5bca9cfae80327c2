package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
)

func TestCheckTools(t *testing.T) {
	t.Parallel()
	if _, err := lookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	cfg := config.NewConfig()
	cfg.Tools["shell"] = "sh -e"

	var buf bytes.Buffer
	missing := checkTools(&buf, cfg, []string{"shell", "redflow-missing-tool"})

	if len(missing) != 1 || missing[0] != "redflow-missing-tool" {
		t.Errorf("unexpected missing tools %v", missing)
	}
	out := buf.String()
	if !strings.Contains(out, "shell  ->") || !strings.Contains(out, "redflow-missing-tool  (not found)") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestRunCheckCmd(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "check", "sh")
	if err != nil {
		t.Errorf("expected sh to be found, got %v", err)
	}

	out, _, err := execute(t, "check", "sh", "--extra", "redflow-missing-tool")
	if exitCode(err) != exitMissingTools {
		t.Errorf("expected exit status %d, got %v", exitMissingTools, err)
	}
	if !strings.Contains(out, "Some tools are missing") {
		t.Errorf("expected hint, got %q", out)
	}
}

func TestRunPlaybooksCmd(t *testing.T) {
	isolate(t)

	out, _, err := execute(t, "playbooks")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"recon-lite", "recon-full", "steps)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got:\n%s", want, out)
		}
	}
}
