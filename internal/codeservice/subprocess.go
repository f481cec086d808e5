package codeservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arclight-labs/maker/internal/model"
	"github.com/arclight-labs/maker/internal/worker"
)

// subprocessTimeout is spec §4.3's default for git_diff/run_tests: "delegate
// to subprocess with a timeout (default 30 s)".
const subprocessTimeout = 30 * time.Second

// GitDiff implements git_diff(file?) (spec §4.3). No shell interpolation of
// caller inputs: file, if given, is passed as a literal argv element to git,
// never concatenated into a shell string.
func (s *Service) GitDiff(ctx context.Context, file string) (model.SubprocessResult, error) {
	args := []string{"diff"}
	if file != "" {
		if _, err := s.resolvePath(file); err != nil {
			return model.SubprocessResult{}, err
		}
		args = append(args, "--", file)
	}
	return s.runSubprocess(ctx, worker.Command{Name: "git", Args: args, Dir: s.root})
}

// RunTests implements run_tests(test_file?) (spec §4.3). test_file, if
// given, is resolved and validated against the codebase root before being
// passed to the runner as a literal argument.
func (s *Service) RunTests(ctx context.Context, testFile string) (model.SubprocessResult, error) {
	args := []string{"test", "./..."}
	if testFile != "" {
		if _, err := s.resolvePath(testFile); err != nil {
			return model.SubprocessResult{}, err
		}
		args = []string{"test", "-run", testFile, "./..."}
	}
	return s.runSubprocess(ctx, worker.Command{Name: "go", Args: args, Dir: s.root})
}

func (s *Service) runSubprocess(ctx context.Context, cmd worker.Command) (model.SubprocessResult, error) {
	if s.runner == nil {
		return model.SubprocessResult{}, fmt.Errorf("codeservice: no command runner configured")
	}
	runCtx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()

	out, err := s.runner.Run(runCtx, cmd)
	exitCode := 0
	if err != nil {
		exitCode = 1
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return model.SubprocessResult{ExitCode: -1, Output: "timed out after " + subprocessTimeout.String()}, nil
		}
	}
	return model.SubprocessResult{ExitCode: exitCode, Output: string(out)}, nil
}
