package steps

import (
	"bytes"
	"context"

	"github.com/Wilhelmroentgen/REDFLOW/internal/report"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

const (
	reportFile = "report.md"
	chartFile  = "steps.mmd"

	// KeyReport holds the path of the rendered report.
	KeyReport = "report"
)

// report renders report.md from the checkpoints written so far.
func (s *set) report(_ context.Context, st state.State, params map[string]any) (state.State, error) {
	runID := st.RunID()
	if runID == "" {
		return nil, ErrNoRunID
	}
	title, err := stringParam(params, "title")
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = s.cfg.ReportTitle
	}

	artifacts, err := s.store.ListArtifacts(runID)
	if err != nil {
		return nil, err
	}
	d := report.NewData(title, st, s.store.Checkpoints(runID), artifacts)

	var buf bytes.Buffer
	if _, err := report.NewMarkdownWriter(&buf).Write(d); err != nil {
		return nil, err
	}
	path, err := s.store.WriteFile(runID, reportFile, buf.Bytes())
	if err != nil {
		return nil, err
	}
	if len(d.Steps) > 0 {
		if _, err := s.store.WriteGraph(runID, chartFile, []byte(report.PieChart(d))); err != nil {
			return nil, err
		}
	}

	s.logger.Info("report written", "run_id", runID, "path", path)
	st[KeyReport] = path
	return st, nil
}
