package target

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// TestNormalize tests target canonicalization.
func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Example.COM", want: "example.com"},
		{in: "  example.com.  ", want: "example.com"},
		{in: "https://www.example.com/login?next=/", want: "www.example.com"},
		{in: "example.com:8443", want: "example.com"},
		{in: "bücher.example", want: "xn--bcher-kva.example"},
		{in: "192.0.2.10", want: "192.0.2.10"},
		{in: "192.0.2.10:22", want: "192.0.2.10"},
		{in: "2001:db8::1", want: "2001:db8::1"},
		{in: "[2001:db8::1]:443", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := Normalize(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("rejects invalid values", func(t *testing.T) {
		t.Parallel()

		for _, in := range []string{"", "   ", "localhost", "exa mple.com", "bad_name.com", "$(reboot).com"} {
			if _, err := Normalize(in); !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("Normalize(%q): expected ErrInvalidTarget, got %v", in, err)
			}
		}
	})
}

// TestRootDomain tests registrable domain detection.
func TestRootDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"api.example.com":   "example.com",
		"example.com":       "example.com",
		"a.b.example.co.uk": "example.co.uk",
		"192.0.2.1":         "",
		"co.uk":             "",
	}
	for in, want := range tests {
		if got := RootDomain(in); got != want {
			t.Errorf("RootDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

// TestInScope tests subdomain matching.
func TestInScope(t *testing.T) {
	t.Parallel()

	if !InScope("api.example.com", "example.com") || !InScope("Example.com.", "example.com") {
		t.Error("expected hosts to be in scope")
	}
	if InScope("badexample.com", "example.com") || InScope("example.com.evil.net", "example.com") {
		t.Error("expected hosts to be out of scope")
	}
}

// TestExpand tests single targets and target files.
func TestExpand(t *testing.T) {
	t.Parallel()

	t.Run("single target", func(t *testing.T) {
		t.Parallel()

		got, err := Expand("WWW.Example.com")
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, []string{"www.example.com"}) {
			t.Errorf("unexpected targets %v", got)
		}
	})

	t.Run("target file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "targets.txt")
		content := "# scope\nexample.com\n\n192.0.2.1\nEXAMPLE.com\nhttps://shop.example.org/\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		got, err := Expand(path)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"example.com", "192.0.2.1", "shop.example.org"}
		if !slices.Equal(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("invalid line reports its position", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "targets.txt")
		if err := os.WriteFile(path, []byte("example.com\nnot a host\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		_, err := Expand(path)
		if !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("expected ErrInvalidTarget, got %v", err)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "targets.txt")
		if err := os.WriteFile(path, []byte("# nothing\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Expand(path); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("expected ErrInvalidTarget, got %v", err)
		}
	})
}
