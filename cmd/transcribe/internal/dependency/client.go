package dependency

import (
	"context"
	"fmt"
	"strconv"
)

// DependencyClient is a facade the audio source and the local whisper backend
// use to run external programs without caring about execution details.
//
// It provides high-level methods that encapsulate:
//   - Command construction
//   - Security validation
//   - Executor invocation
//   - Error handling and reporting
type DependencyClient struct {
	executor    DependencyExecutor
	config      ExecutorConfig
	pathManager *PathManager
}

// NewClient creates a new DependencyClient based on the provided configuration.
func NewClient(config ExecutorConfig) (*DependencyClient, error) {
	if config.Mode == "" {
		config.Mode = ModeLocal
	}

	var executor DependencyExecutor
	switch config.Mode {
	case ModeLocal:
		executor = NewLocalExecutor(config)
	default:
		return nil, fmt.Errorf("invalid execution mode: %s (must be 'local')", config.Mode)
	}

	return NewClientWithExecutor(executor, config), nil
}

// NewClientWithExecutor wires a client around an existing executor.
func NewClientWithExecutor(executor DependencyExecutor, config ExecutorConfig) *DependencyClient {
	return &DependencyClient{
		executor:    executor,
		config:      config,
		pathManager: NewPathManager(config.WorkDir),
	}
}

// DecodeAudio converts any media file ffmpeg understands into a mono
// 16-bit PCM WAV at sampleRate.
//
// Example:
//
//	err := client.DecodeAudio(ctx, "/in/talk.mp3", "/tmp/aidg-transcribe/jobs/j1/source.wav", 16000)
func (c *DependencyClient) DecodeAudio(ctx context.Context, inputPath, outputPath string, sampleRate int) error {
	req := CommandRequest{
		Command: "ffmpeg",
		Args: []string{
			"-nostdin",
			"-hide_banner",
			"-loglevel", "error",
			"-y",
			"-i", inputPath,
			"-vn", // drop video streams
			"-ar", strconv.Itoa(sampleRate),
			"-ac", "1",
			"-c:a", "pcm_s16le",
			"-f", "wav",
			outputPath,
		},
		Timeout: c.config.DefaultTimeout,
	}

	if err := ValidateCommandRequest(req, c.config); err != nil {
		return fmt.Errorf("command validation failed: %w", err)
	}

	resp, err := c.executor.ExecuteCommand(ctx, req)
	if err != nil {
		return fmt.Errorf("audio decoding failed: %w", err)
	}

	if !resp.Success || resp.ExitCode != 0 {
		return fmt.Errorf("audio decoding failed (exit code %d): %s", resp.ExitCode, resp.Stderr)
	}

	return nil
}

// HealthCheck verifies that the underlying executor is ready to handle requests.
func (c *DependencyClient) HealthCheck(ctx context.Context) error {
	return c.executor.HealthCheck(ctx)
}

// PathManager returns the path manager for scratch file operations.
func (c *DependencyClient) PathManager() *PathManager {
	return c.pathManager
}

// Config returns the executor configuration (read-only access).
func (c *DependencyClient) Config() ExecutorConfig {
	return c.config
}

// ExecuteCommand validates req and runs it through the underlying executor.
// The local whisper backend uses it to drive the CLI.
func (c *DependencyClient) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	if err := ValidateCommandRequest(req, c.config); err != nil {
		return CommandResponse{}, fmt.Errorf("command validation failed: %w", err)
	}
	return c.executor.ExecuteCommand(ctx, req)
}
