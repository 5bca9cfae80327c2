package steps

import (
	"context"
	"fmt"

	"github.com/Wilhelmroentgen/REDFLOW/internal/pipeline"
	"github.com/Wilhelmroentgen/REDFLOW/internal/shell"
	"github.com/Wilhelmroentgen/REDFLOW/internal/state"
)

// execParams are the parameters of an exec step.
type execParams struct {
	tool        string
	args        string
	artifact    string
	into        string
	failOnError bool
}

func parseExecParams(params map[string]any) (execParams, error) {
	var p execParams
	var err error
	if p.tool, err = stringParam(params, "tool"); err != nil {
		return p, err
	}
	if p.tool == "" {
		return p, fmt.Errorf("%w: tool", ErrMissingParam)
	}
	if p.args, err = stringParam(params, "args"); err != nil {
		return p, err
	}
	if p.artifact, err = stringParam(params, "artifact"); err != nil {
		return p, err
	}
	if p.into, err = stringParam(params, "into"); err != nil {
		return p, err
	}
	if p.failOnError, err = boolParam(params, "fail_on_error"); err != nil {
		return p, err
	}
	return p, nil
}

// exec runs one tool. Its stdout is stored as the step artifact and, with
// "into", merged line by line into a state list.
func (s *set) exec(ctx context.Context, st state.State, params map[string]any) (state.State, error) {
	p, err := parseExecParams(params)
	if err != nil {
		return nil, err
	}
	data, err := s.templateData(st)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("run_id", st.RunID(), "tool", p.tool)

	if out, ok := s.reusable(st, st.RunID(), p.artifact); ok {
		logger.Info("reusing artifact", "path", p.artifact)
		addArtifact(st, p.artifact)
		s.merge(st, p.into, string(out))
		return st, nil
	}

	args, err := render(p.args, data)
	if err != nil {
		return nil, err
	}
	timeout, err := s.timeout(p.tool, params)
	if err != nil {
		return nil, err
	}

	res, err := s.runner.Run(ctx, s.command(p.tool, args), timeout, shell.WithDir(data.RunDir))
	if err != nil {
		return nil, err
	}

	if !res.Success() {
		if p.failOnError {
			return nil, &pipeline.StepError{
				Err:    fmt.Errorf("%s exited with code %d", p.tool, res.ExitCode),
				Stderr: res.Stderr,
			}
		}
		logger.Warn("tool failed", "exit_code", res.ExitCode)
		recordToolFailure(ctx, st, ImplExec, res)
	}

	// A failed run leaves no artifact so that resume runs the tool again.
	if p.artifact != "" && res.Success() {
		if err := s.saveArtifact(st, p.artifact, []byte(res.Stdout)); err != nil {
			return nil, err
		}
	}
	s.merge(st, p.into, res.Stdout)
	return st, nil
}

// merge adds the lines of out to the list field into.
func (s *set) merge(st state.State, into, out string) {
	if into == "" {
		return
	}
	st.SetStrings(into, union(st.Strings(into), lines(out)))
}
