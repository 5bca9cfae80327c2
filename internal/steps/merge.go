package steps

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

const (
	subsPattern  = "subs_*.txt"
	subsArtifact = "subs_all.txt"
)

// mergeSortUnique combines every subs_*.txt artifact with the subdomains
// already in the state and writes the sorted result to subs_all.txt.
func (s *set) mergeSortUnique(_ context.Context, st state.State, _ map[string]any) (state.State, error) {
	runID := st.RunID()
	if runID == "" {
		return nil, ErrNoRunID
	}
	dir := s.store.ArtifactsDir(runID)

	files, err := filepath.Glob(filepath.Join(dir, subsPattern))
	if err != nil {
		return nil, err
	}
	all := st.Strings("subdomains")
	for _, f := range files {
		if filepath.Base(f) == subsArtifact {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			s.logger.Warn("skipping unreadable artifact", "run_id", runID, "path", f, "error", err)
			continue
		}
		all = append(all, lines(string(data))...)
	}

	for i, h := range all {
		all[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "*.")
	}
	all = slices.DeleteFunc(sortUnique(all), func(h string) bool { return h == "" })

	content := strings.Join(all, "\n")
	if len(all) > 0 {
		content += "\n"
	}
	if err := s.saveArtifact(st, subsArtifact, []byte(content)); err != nil {
		return nil, err
	}
	st.SetStrings("subdomains", all)
	return st, nil
}
