// Package dependency provides an abstraction layer for executing the external
// programs the transcriber relies on (ffmpeg, the whisper CLI).
package dependency

import "time"

// ExecutionMode specifies how commands should be executed.
type ExecutionMode string

const (
	// ModeLocal executes commands directly on the local system using exec.Command.
	ModeLocal ExecutionMode = "local"
)

// CommandRequest encapsulates all information needed to execute a command.
type CommandRequest struct {
	// Command is the binary name or alias (e.g., "ffmpeg", "whisper").
	Command string `json:"command" yaml:"command"`

	// Args are the command-line arguments (e.g., ["-i", "input.mp3", "output.wav"]).
	Args []string `json:"args" yaml:"args"`

	// Env contains environment variables to set (e.g., {"OMP_NUM_THREADS": "2"}).
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// WorkingDir is the directory to execute the command in (default: current dir).
	WorkingDir string `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`

	// Timeout is the maximum execution duration (0 means the executor default).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// CommandResponse contains the result of a command execution.
type CommandResponse struct {
	// Success indicates if the command completed without errors.
	Success bool `json:"success" yaml:"success"`

	// ExitCode is the process exit code (0 typically means success).
	ExitCode int `json:"exit_code" yaml:"exit_code"`

	// Stdout contains the standard output of the command.
	Stdout string `json:"stdout" yaml:"stdout"`

	// Stderr contains the standard error output (useful for debugging).
	Stderr string `json:"stderr" yaml:"stderr"`

	// Duration is the actual execution time.
	Duration time.Duration `json:"duration_ms" yaml:"duration_ms"`
}

// ExecutorConfig defines the configuration for dependency execution.
type ExecutorConfig struct {
	// Mode specifies the execution strategy. Only "local" is supported.
	Mode ExecutionMode `json:"mode" yaml:"mode"`

	// WorkDir is the scratch directory for decoded audio and per-worker chunk
	// files. Working directories passed to commands must be inside it.
	WorkDir string `json:"work_dir" yaml:"work_dir"`

	// LocalBinaryPaths maps command names to local binary paths
	// (e.g., {"ffmpeg": "/usr/local/bin/ffmpeg"}).
	LocalBinaryPaths map[string]string `json:"local_binary_paths" yaml:"local_binary_paths"`

	// DefaultTimeout is the default execution timeout for all commands.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`

	// AllowedCommands lists the commands that are permitted to execute.
	// Empty list means allow all.
	AllowedCommands []string `json:"allowed_commands" yaml:"allowed_commands"`
}
