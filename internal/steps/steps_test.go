package steps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/Wilhelmroentgen/REDFLOW/internal/config"
	"github.com/Wilhelmroentgen/REDFLOW/internal/pipeline"
	"github.com/Wilhelmroentgen/REDFLOW/internal/registry"
	"github.com/Wilhelmroentgen/REDFLOW/internal/snapshot"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

const whoisFixture = `Domain Name: EXAMPLE.COM
Registrar: Example Registrar, Inc.
OrgName:        Example Networks
OrgId:          EXN
NetRange:       93.184.216.0 - 93.184.216.255
CIDR:           93.184.216.0/24, 2606:2800::/32
OriginAS:       AS15133
route:          93.184.216.0/24
descr:          Example Networks
Registrant Email: Hostmaster@Example.com
Abuse contact: abuse@example.com via AS15133 and as64500
`

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// setup returns a registry holding the built-in implementations.
func setup(t *testing.T, tools map[string]string) (*registry.Registry, *snapshot.Store) {
	t.Helper()

	store := snapshot.NewStore(t.TempDir(), snapshot.WithRetryBudget(0))
	cfg := config.NewConfig()
	for k, v := range tools {
		cfg.Tools[k] = v
	}
	reg := registry.New()
	if err := Register(reg, Deps{Store: store, Config: cfg}); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	return reg, store
}

// call invokes impl the way the executor does, under step id step.
func call(t *testing.T, reg *registry.Registry, impl, step string, st state.State, params map[string]any) (state.State, error) {
	t.Helper()

	h, err := reg.Lookup(impl)
	if err != nil {
		t.Fatalf("lookup %s: %v", impl, err)
	}
	return h(registry.WithStepID(context.Background(), step), st, params)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	reg, store := setup(t, nil)
	want := []string{ImplExec, ImplMergeSortUnique, ImplReport, ImplWhois}
	if got := reg.Names(); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if err := Register(reg, Deps{Store: store}); !errors.Is(err, registry.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}
	if err := Register(registry.New(), Deps{}); !errors.Is(err, ErrMissingParam) {
		t.Errorf("expected ErrMissingParam without a store, got %v", err)
	}
}

func TestExec(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	t.Run("stores output and merges lines", func(t *testing.T) {
		t.Parallel()

		reg, store := setup(t, nil)
		st := state.New("example.com")
		st.SetStrings("alive_hosts", []string{"b.example.com"})

		final, err := call(t, reg, ImplExec, "dnsx", st, map[string]any{
			"tool":     "printf",
			"args":     `'%s\n' a.example.com b.example.com {{quote .Target}}`,
			"artifact": "dnsx_resolved.txt",
			"into":     "alive_hosts",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"b.example.com", "a.example.com", "example.com"}
		if got := final.Strings("alive_hosts"); !slices.Equal(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
		if !slices.Contains(final.Strings(KeyArtifacts), "dnsx_resolved.txt") {
			t.Error("expected artifact to be listed")
		}
		data, err := os.ReadFile(filepath.Join(store.ArtifactsDir(st.RunID()), "dnsx_resolved.txt"))
		if err != nil || !strings.Contains(string(data), "a.example.com") {
			t.Errorf("unexpected artifact %q (%v)", data, err)
		}
		if len(final.Errors()) != 0 {
			t.Errorf("expected no errors, got %+v", final.Errors())
		}
	})

	t.Run("template sees the run directory", func(t *testing.T) {
		t.Parallel()

		reg, store := setup(t, nil)
		st := state.New("example.com")

		final, err := call(t, reg, ImplExec, "pwd", st, map[string]any{
			"tool": "echo",
			"args": "{{quote .RunDir}}",
			"into": "dirs",
		})
		if err != nil {
			t.Fatal(err)
		}
		runDir, _ := store.RunDir(st.RunID())
		if got := final.Strings("dirs"); len(got) != 1 || got[0] != runDir {
			t.Errorf("expected %s, got %v", runDir, got)
		}
	})

	t.Run("tool failure is recorded and the step continues", func(t *testing.T) {
		t.Parallel()

		reg, store := setup(t, nil)
		st := state.New("example.com")
		final, err := call(t, reg, ImplExec, "naabu", st, map[string]any{
			"tool":     "sh",
			"args":     `-c 'echo partial; echo denied >&2; exit 3'`,
			"artifact": "naabu.txt",
			"into":     "open_ports",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		errs := final.Errors()
		if len(errs) != 1 {
			t.Fatalf("expected one error, got %+v", errs)
		}
		if errs[0].Step != "naabu" || errs[0].Impl != ImplExec || errs[0].Error != "exit_status_3" {
			t.Errorf("unexpected record %+v", errs[0])
		}
		if !strings.Contains(errs[0].Stderr, "denied") {
			t.Errorf("expected stderr in record, got %q", errs[0].Stderr)
		}
		if got := final.Strings("open_ports"); !slices.Equal(got, []string{"partial"}) {
			t.Errorf("expected partial output to be kept, got %v", got)
		}
		if _, err := os.Stat(filepath.Join(store.ArtifactsDir(st.RunID()), "naabu.txt")); !os.IsNotExist(err) {
			t.Errorf("expected no artifact for a failed tool, got %v", err)
		}
	})

	t.Run("fail_on_error turns a failure into a step error", func(t *testing.T) {
		t.Parallel()

		reg, _ := setup(t, nil)
		_, err := call(t, reg, ImplExec, "nmap", state.New("example.com"), map[string]any{
			"tool":          "sh",
			"args":          `-c 'echo nope >&2; exit 1'`,
			"fail_on_error": true,
		})
		var se *pipeline.StepError
		if !errors.As(err, &se) {
			t.Fatalf("expected StepError, got %v", err)
		}
		if !strings.Contains(se.Stderr, "nope") {
			t.Errorf("expected stderr, got %q", se.Stderr)
		}
	})

	t.Run("timeout is recorded", func(t *testing.T) {
		t.Parallel()

		reg, _ := setup(t, nil)
		final, err := call(t, reg, ImplExec, "amass", state.New("example.com"), map[string]any{
			"tool":    "sleep",
			"args":    "5",
			"timeout": 1,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		errs := final.Errors()
		if len(errs) != 1 || errs[0].Error != ErrTimeout || !strings.HasPrefix(errs[0].Stderr, "Timeout after") {
			t.Errorf("unexpected errors %+v", errs)
		}
	})

	t.Run("resume reuses the artifact", func(t *testing.T) {
		t.Parallel()

		reg, store := setup(t, map[string]string{"httpx": "false"})
		st := state.New("example.com")
		st.SetFlags(true, false)
		if _, err := store.WriteArtifact(st.RunID(), "httpx_urls.txt", []byte("https://a.example.com\n")); err != nil {
			t.Fatal(err)
		}

		final, err := call(t, reg, ImplExec, "httpx", st, map[string]any{
			"tool":     "httpx",
			"artifact": "httpx_urls.txt",
			"into":     "urls",
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(final.Errors()) != 0 {
			t.Errorf("expected the tool not to run, got %+v", final.Errors())
		}
		if got := final.Strings("urls"); !slices.Equal(got, []string{"https://a.example.com"}) {
			t.Errorf("unexpected urls %v", got)
		}
	})

	t.Run("resume retries a tool that timed out", func(t *testing.T) {
		t.Parallel()

		reg, _ := setup(t, nil)
		st := state.New("example.com")
		st.SetFlags(true, false)
		params := map[string]any{
			"tool":     "sleep",
			"args":     "5",
			"timeout":  1,
			"artifact": "slow.txt",
		}

		first, err := call(t, reg, ImplExec, "slow", st, params)
		if err != nil {
			t.Fatal(err)
		}
		if slices.Contains(first.Strings(KeyArtifacts), "slow.txt") {
			t.Error("timed out tool must not list an artifact")
		}

		second, err := call(t, reg, ImplExec, "slow", first, params)
		if err != nil {
			t.Fatal(err)
		}
		if n := len(second.Errors()); n != 2 {
			t.Errorf("expected the tool to run again and time out, got %d error records", n)
		}
	})

	t.Run("force re-runs the tool", func(t *testing.T) {
		t.Parallel()

		reg, store := setup(t, map[string]string{"httpx": "false"})
		st := state.New("example.com")
		st.SetFlags(true, true)
		if _, err := store.WriteArtifact(st.RunID(), "httpx_urls.txt", []byte("stale\n")); err != nil {
			t.Fatal(err)
		}

		final, err := call(t, reg, ImplExec, "httpx", st, map[string]any{
			"tool":     "httpx",
			"artifact": "httpx_urls.txt",
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(final.Errors()) != 1 {
			t.Errorf("expected the failing tool to run, got %+v", final.Errors())
		}
	})

	t.Run("invalid params", func(t *testing.T) {
		t.Parallel()

		reg, _ := setup(t, nil)
		tests := []struct {
			name   string
			params map[string]any
			want   error
		}{
			{"missing tool", map[string]any{}, ErrMissingParam},
			{"tool not a string", map[string]any{"tool": 3}, ErrInvalidParam},
			{"timeout not a number", map[string]any{"tool": "echo", "timeout": "soon"}, ErrInvalidParam},
			{"fail_on_error not a bool", map[string]any{"tool": "echo", "fail_on_error": "yes"}, ErrInvalidParam},
			{"broken template", map[string]any{"tool": "echo", "args": "{{.Target"}, ErrInvalidParam},
			{"unknown template field", map[string]any{"tool": "echo", "args": "{{.Nope}}"}, ErrInvalidParam},
		}
		for _, tt := range tests {
			if _, err := call(t, reg, ImplExec, "x", state.New("example.com"), tt.params); !errors.Is(err, tt.want) {
				t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
			}
		}
	})

	t.Run("state without run id", func(t *testing.T) {
		t.Parallel()

		reg, _ := setup(t, nil)
		if _, err := call(t, reg, ImplExec, "x", state.State{"target": "example.com"}, map[string]any{"tool": "echo"}); !errors.Is(err, ErrNoRunID) {
			t.Errorf("expected ErrNoRunID, got %v", err)
		}
	})
}

func TestQuote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"example.com", "example.com"},
		{"/tmp/runs/abc/artifacts", "/tmp/runs/abc/artifacts"},
		{"two words", "'two words'"},
		{"it's", `'it'"'"'s'`},
		{"a;rm -rf /", "'a;rm -rf /'"},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseWhois(t *testing.T) {
	t.Parallel()

	rec := ParseWhois(whoisFixture)

	if !slices.Equal(rec.ASNs, []string{"15133", "64500"}) {
		t.Errorf("unexpected ASNs %v", rec.ASNs)
	}
	if !slices.Equal(rec.Orgs, []string{"Example Networks", "EXN"}) {
		t.Errorf("unexpected orgs %v", rec.Orgs)
	}
	wantPrefixes := []string{"2606:2800::/32", "93.184.216.0", "93.184.216.0/24", "93.184.216.255"}
	if !slices.Equal(rec.Prefixes, wantPrefixes) {
		t.Errorf("expected %v, got %v", wantPrefixes, rec.Prefixes)
	}
	if !slices.Equal(rec.Emails, []string{"Hostmaster@Example.com", "abuse@example.com"}) {
		t.Errorf("unexpected emails %v", rec.Emails)
	}
	if got := rec.Fields["Registrar"]; len(got) != 1 || got[0] != "Example Registrar, Inc." {
		t.Errorf("unexpected registrar field %v", got)
	}
}

func TestWhois(t *testing.T) {
	t.Parallel()
	skipOnWindows(t)

	t.Run("parses output into state", func(t *testing.T) {
		t.Parallel()

		fixture := filepath.Join(t.TempDir(), "whois.txt")
		if err := os.WriteFile(fixture, []byte(whoisFixture), 0600); err != nil {
			t.Fatal(err)
		}
		reg, store := setup(t, map[string]string{"whois": "cat"})
		st := state.New("www.example.com")

		final, err := call(t, reg, ImplWhois, "whois", st, map[string]any{"args": quote(fixture)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		asn, _ := final["asn"].(map[string]any)
		if asn["org"] != "Example Networks" {
			t.Errorf("unexpected asn %v", asn)
		}
		if got := final.Strings("roots"); !slices.Equal(got, []string{"example.com"}) {
			t.Errorf("expected registrable root, got %v", got)
		}
		if _, err := os.Stat(filepath.Join(store.ArtifactsDir(st.RunID()), whoisArtifact)); err != nil {
			t.Error("expected raw whois artifact")
		}
	})

	t.Run("empty output is recorded", func(t *testing.T) {
		t.Parallel()

		reg, _ := setup(t, map[string]string{"whois": "true"})
		final, err := call(t, reg, ImplWhois, "whois", state.New("example.com"), nil)
		if err != nil {
			t.Fatal(err)
		}
		errs := final.Errors()
		if len(errs) != 1 || errs[0].Error != ErrEmptyOutput || errs[0].Step != "whois" {
			t.Errorf("unexpected errors %+v", errs)
		}
		if got := final.Strings("roots"); !slices.Equal(got, []string{"example.com"}) {
			t.Errorf("expected root even without output, got %v", got)
		}
	})

	t.Run("IP targets add no root", func(t *testing.T) {
		t.Parallel()

		reg, _ := setup(t, map[string]string{"whois": "echo"})
		final, err := call(t, reg, ImplWhois, "whois", state.New("93.184.216.34"), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := final.Strings("roots"); len(got) != 0 {
			t.Errorf("expected no roots, got %v", got)
		}
	})

	t.Run("resume reuses the raw answer", func(t *testing.T) {
		t.Parallel()

		reg, store := setup(t, map[string]string{"whois": "false"})
		st := state.New("example.com")
		st.SetFlags(true, false)
		if _, err := store.WriteArtifact(st.RunID(), whoisArtifact, []byte(whoisFixture)); err != nil {
			t.Fatal(err)
		}

		final, err := call(t, reg, ImplWhois, "whois", st, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(final.Errors()) != 0 {
			t.Errorf("expected no errors, got %+v", final.Errors())
		}
		asn, _ := final["asn"].(map[string]any)
		if nums, _ := asn["numbers"].([]any); len(nums) != 2 {
			t.Errorf("expected ASNs from the reused artifact, got %v", asn)
		}
	})
}

func TestMergeSortUnique(t *testing.T) {
	t.Parallel()

	reg, store := setup(t, nil)
	st := state.New("example.com")
	st.SetStrings("subdomains", []string{"C.example.com"})
	runID := st.RunID()

	for name, content := range map[string]string{
		"subs_subfinder.txt":   "b.example.com\na.example.com\n",
		"subs_assetfinder.txt": "*.a.example.com\nb.example.com\n\n",
		"subs_all.txt":         "stale.example.com\n",
		"other.txt":            "ignored.example.com\n",
	} {
		if _, err := store.WriteArtifact(runID, name, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	final, err := call(t, reg, ImplMergeSortUnique, "merge_subdomains", st, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"a.example.com", "b.example.com", "c.example.com"}
	if got := final.Strings("subdomains"); !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	data, err := os.ReadFile(filepath.Join(store.ArtifactsDir(runID), subsArtifact))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != strings.Join(want, "\n")+"\n" {
		t.Errorf("unexpected subs_all.txt %q", data)
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	reg, store := setup(t, nil)
	st := state.New("example.com")
	runID := st.RunID()
	ctx := context.Background()

	store.Write(ctx, runID, snapshot.NameInit, st)
	store.Write(ctx, runID, snapshot.AfterStep("whois"), st)
	st.AppendError(state.ErrorRecord{Step: "nmap", Exception: "exit status 1"})
	store.Write(ctx, runID, snapshot.AfterStepError("nmap"), st)

	final, err := call(t, reg, ImplReport, "report", st, map[string]any{"title": "Weekly Recon"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, _ := final[KeyReport].(string)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected report at %q: %v", path, err)
	}
	out := string(data)
	for _, want := range []string{"# Weekly Recon", "`whois`", "`nmap`", "exit status 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected report to contain %q", want)
		}
	}

	runDir, _ := store.RunDir(runID)
	if filepath.Dir(path) != runDir {
		t.Errorf("expected report in the run directory, got %s", path)
	}
	if _, err := os.Stat(filepath.Join(runDir, snapshot.GraphsDirName, chartFile)); err != nil {
		t.Error("expected outcome chart")
	}
}
