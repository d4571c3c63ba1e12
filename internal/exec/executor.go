package exec

import (
	"bytes"
	"context"
	"os/exec"
)

// CommandExecutor runs external commands. Tests substitute MockExecutor.
type CommandExecutor interface {
	// Execute runs name with args and returns its stdout and stderr.
	Execute(ctx context.Context, name string, args ...string) (stdout string, stderr string, err error)
}

// RealExecutor executes actual system commands.
type RealExecutor struct {
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// NewRealExecutor creates an executor that runs real commands.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Execute runs the command, killing it when ctx is cancelled.
func (e *RealExecutor) Execute(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
