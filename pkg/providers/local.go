package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the process
// has been killed.
const waitDelay = 2 * time.Second

// LocalExecutor runs commands via os/exec. Each process gets its own process
// group so cancellation also kills its children.
type LocalExecutor struct {
	// Env overrides the process environment when non-empty.
	Env []string
}

// Execute runs a command with the given arguments, feeding stdin when set.
// A non-zero exit is reported through ExitCode, not as an error. Cancelling
// ctx kills the process group and returns ctx.Err() wrapped.
func (l *LocalExecutor) Execute(ctx context.Context, command string, args []string, stdin []byte) (*CommandResult, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	if len(l.Env) > 0 {
		cmd.Env = l.Env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	duration := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &CommandResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: -1,
			Duration: duration,
		}, fmt.Errorf("execute command %q: %w", command, ctxErr)
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execute command %q: %w", command, err)
		}
	}

	return &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// IsExecNotFound returns true when the error indicates the executable was not found.
func IsExecNotFound(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var execErr *exec.Error
	return errors.As(err, &execErr)
}
