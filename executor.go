package glidein

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/bbockelm/golang-glidein/logging"
)

// Example: "5 job(s) submitted to cluster 12345."
var submittedPattern = regexp.MustCompile(`(\d+) job\(s\) submitted to cluster (\d+)`)

// SubmitResult is what condor_submit reported.
type SubmitResult struct {
	// Output is stdout and stderr interleaved
	Output []byte
	// ClusterID and JobCount are zero when the output could not be parsed
	ClusterID int
	JobCount  int
}

// Executor runs condor_submit.
type Executor struct {
	// SubmitPath is the condor_submit binary. Empty means "condor_submit" from PATH.
	SubmitPath string
	// WorkDir is the child's working directory. Empty inherits ours.
	WorkDir string
	Logger  *logging.Logger
}

// Submit runs condor_submit on templatePath with env as the child's entire
// environment and blocks until it exits. A non-zero exit is a
// *SubmissionError carrying the captured output. Every call queues new jobs.
func (e *Executor) Submit(ctx context.Context, env *EnvironmentMap, templatePath string) (*SubmitResult, error) {
	path := e.SubmitPath
	if path == "" {
		path = "condor_submit"
	}

	cmd := exec.CommandContext(ctx, path, templatePath)
	cmd.Env = env.Environ()
	cmd.Dir = e.WorkDir

	e.Logger.Info(logging.DestinationSubmit, "running condor_submit", "binary", path, "template", templatePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.Logger.Error(logging.DestinationSubmit, "condor_submit failed", "exit_code", exitErr.ExitCode(), "output", string(output))
			return nil, &SubmissionError{ExitCode: exitErr.ExitCode(), Output: output}
		}
		return nil, fmt.Errorf("failed to run %s: %w", path, err)
	}

	result := parseSubmitOutput(output)
	e.Logger.Info(logging.DestinationSubmit, "submitted", "cluster", result.ClusterID, "jobs", result.JobCount)
	return result, nil
}

func parseSubmitOutput(output []byte) *SubmitResult {
	result := &SubmitResult{Output: output}
	if m := submittedPattern.FindSubmatch(output); m != nil {
		result.JobCount, _ = strconv.Atoi(string(m[1]))
		result.ClusterID, _ = strconv.Atoi(string(m[2]))
	}
	return result
}
