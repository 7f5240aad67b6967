// Package ghcli runs the GitHub CLI and captures its output.
package ghcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result is the outcome of one gh invocation.
type Result struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports whether the command exited with status zero.
func (r *Result) OK() bool { return r.ExitCode == 0 }

// Runner executes gh CLI commands.
type Runner interface {
	Run(ctx context.Context, args []string) (*Result, error)
}

// ExecRunner implements Runner using os/exec.
type ExecRunner struct {
	Binary string
}

// NewExecRunner returns a runner for binary, defaulting to "gh".
func NewExecRunner(binary string) *ExecRunner {
	if binary == "" {
		binary = "gh"
	}
	return &ExecRunner{Binary: binary}
}

// Run executes the command. A non-zero exit is reported through
// Result.ExitCode with a nil error; err is set only when the process
// could not be started or was interrupted.
func (r *ExecRunner) Run(ctx context.Context, args []string) (*Result, error) {
	binary := r.Binary
	if binary == "" {
		binary = "gh"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := &Result{Command: FormatCommand(binary, args)}
	err := cmd.Run()
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return result, fmt.Errorf("%s: %w", result.Command, ctx.Err())
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("failed to start %s: %w", binary, err)
	}
}

// Version returns the first line of `gh --version`.
func Version(ctx context.Context, runner Runner) (string, error) {
	res, err := runner.Run(ctx, []string{"--version"})
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("gh --version exited with %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	line, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return line, nil
}

// FormatCommand renders argv the way a user would type it, quoting
// arguments that contain spaces.
func FormatCommand(binary string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, binary)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"") {
			parts = append(parts, fmt.Sprintf("%q", a))
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
