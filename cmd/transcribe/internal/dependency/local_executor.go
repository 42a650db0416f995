package dependency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/houzhh15/aidg-transcribe/pkg/metrics"
)

// waitDelay bounds how long Wait keeps draining pipes after the process
// group has been killed.
const waitDelay = 5 * time.Second

// LocalExecutor executes commands directly on the local system using exec.Command.
type LocalExecutor struct {
	config ExecutorConfig
}

// NewLocalExecutor creates a new LocalExecutor with the given configuration.
func NewLocalExecutor(config ExecutorConfig) *LocalExecutor {
	return &LocalExecutor{config: config}
}

// ExecuteCommand executes a command locally and returns the result.
func (e *LocalExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	// 1. Resolve binary path (from config or PATH)
	binaryPath, err := e.resolveBinaryPath(req.Command)
	if err != nil {
		metrics.RecordCommandExecution(req.Command, string(ModeLocal), metrics.StatusFailed)
		return CommandResponse{ExitCode: -1}, fmt.Errorf("failed to resolve binary path for %s: %w", req.Command, err)
	}

	// 2. Create timeout context
	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.config.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// 3. Build command; cancellation kills the whole process group
	cmd := exec.CommandContext(ctx, binaryPath, req.Args...)
	cmd.Env = append(os.Environ(), e.buildEnvSlice(req.Env)...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	// 4. Execute command and capture output
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	resp := CommandResponse{
		Success:  err == nil,
		ExitCode: e.getExitCode(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	metrics.RecordCommandDuration(req.Command, string(ModeLocal), duration.Seconds())

	// 5. Classify the outcome
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.RecordCommandExecution(req.Command, string(ModeLocal), metrics.StatusTimeout)
		return resp, fmt.Errorf("command execution timeout (%v): %s", timeout, req.Command)
	case errors.Is(ctx.Err(), context.Canceled):
		metrics.RecordCommandExecution(req.Command, string(ModeLocal), metrics.StatusFailed)
		return resp, fmt.Errorf("command cancelled: %s: %w", req.Command, ctx.Err())
	case err != nil:
		metrics.RecordCommandExecution(req.Command, string(ModeLocal), metrics.StatusFailed)
		return resp, err
	}

	metrics.RecordCommandExecution(req.Command, string(ModeLocal), metrics.StatusSuccess)
	return resp, nil
}

// HealthCheck verifies that all configured local binaries are available.
func (e *LocalExecutor) HealthCheck(ctx context.Context) error {
	for cmd, path := range e.config.LocalBinaryPaths {
		if _, err := exec.LookPath(path); err != nil {
			return fmt.Errorf("local command %s not available at %s: %w", cmd, path, err)
		}
	}
	return nil
}

// resolveBinaryPath resolves the binary path from config or PATH environment.
func (e *LocalExecutor) resolveBinaryPath(command string) (string, error) {
	if path, ok := e.config.LocalBinaryPaths[command]; ok {
		return exec.LookPath(path)
	}
	return exec.LookPath(command)
}

// buildEnvSlice converts environment map to slice format.
func (e *LocalExecutor) buildEnvSlice(envMap map[string]string) []string {
	var result []string
	for k, v := range envMap {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// getExitCode extracts exit code from error.
func (e *LocalExecutor) getExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
