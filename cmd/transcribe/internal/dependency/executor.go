package dependency

import "context"

// DependencyExecutor defines the interface for executing external commands.
//
// Implementations:
//   - LocalExecutor: Executes commands directly using exec.Command
type DependencyExecutor interface {
	// ExecuteCommand executes a command with the given request.
	// It returns the command output and any execution error.
	//
	// If the context is cancelled, the command (and its process group) is
	// terminated promptly.
	ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error)

	// HealthCheck verifies that the executor is ready to handle requests.
	// Returns nil if healthy, otherwise an error describing the issue.
	HealthCheck(ctx context.Context) error
}
