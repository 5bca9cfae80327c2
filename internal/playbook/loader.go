package playbook

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

//go:embed playbooks/*.yaml
var builtin embed.FS

// extensions tried, in order, when resolving a playbook by name.
var extensions = []string{".yaml", ".yml", ".json"}

// Load resolves nameOrPath and compiles the playbook it names.
//
// nameOrPath is first treated as a file path. Otherwise each directory in
// dirs is searched for <name>.yaml, <name>.yml or <name>.json, and finally
// the built-in playbooks are consulted.
func Load(nameOrPath string, dirs ...string) (*Plan, error) {
	data, err := Read(nameOrPath, dirs...)
	if err != nil {
		return nil, err
	}
	plan, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", nameOrPath, err)
	}
	return plan, nil
}

// Read returns the raw bytes of the playbook that Load would compile.
func Read(nameOrPath string, dirs ...string) ([]byte, error) {
	if nameOrPath == "" {
		return nil, fmt.Errorf("%w: empty name", ErrPlaybookNotFound)
	}

	if info, err := os.Stat(nameOrPath); err == nil && !info.IsDir() {
		data, err := os.ReadFile(nameOrPath) //nolint:gosec // path provided by user
		if err != nil {
			return nil, fmt.Errorf("failed to read playbook: %w", err)
		}
		return data, nil
	}

	if isPath(nameOrPath) {
		return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, nameOrPath)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, ext := range extensions {
			path := filepath.Join(dir, nameOrPath+ext)
			data, err := os.ReadFile(path) //nolint:gosec // path built from configured directory
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read playbook %s: %w", path, err)
			}
		}
	}

	data, err := builtin.ReadFile("playbooks/" + nameOrPath + ".yaml")
	if err == nil {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, nameOrPath)
}

// List returns the sorted, de-duplicated names of the playbooks found in
// dirs plus the built-in ones.
func List(dirs ...string) []string {
	seen := make(map[string]bool)
	add := func(file string) {
		ext := filepath.Ext(file)
		if !slices.Contains(extensions, ext) {
			return
		}
		seen[strings.TrimSuffix(filepath.Base(file), ext)] = true
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				add(e.Name())
			}
		}
	}

	entries, _ := builtin.ReadDir("playbooks") //nolint:errcheck // embedded directory always exists
	for _, e := range entries {
		add(e.Name())
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// isPath reports whether nameOrPath can only denote a file.
func isPath(nameOrPath string) bool {
	if slices.Contains(extensions, filepath.Ext(nameOrPath)) {
		return true
	}
	return strings.ContainsRune(nameOrPath, os.PathSeparator) || strings.Contains(nameOrPath, "/")
}
