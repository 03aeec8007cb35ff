// Package lifecycle stops, starts and discovers the container that runs the
// extraction service by shelling out to the container CLI.
package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var (
	// ErrCommandTimeout is returned when a lifecycle command outlives its deadline.
	ErrCommandTimeout = errors.New("lifecycle command timed out")
	// ErrToolMissing is returned when the container CLI is not installed.
	ErrToolMissing = errors.New("container tool not found")
)

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes one external command with a deadline. A non-zero exit is a
// Result, not an error; errors mean the command could not run or finish.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s %v after %s: %w", name, args, timeout, ErrCommandTimeout)
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s %v: %w", name, args, ctx.Err())
	}
	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%s: %w", name, ErrToolMissing)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("run %s %v: %w", name, args, err)
}
