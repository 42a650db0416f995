package dependency

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// forbiddenPrefixes are system directories no argument may point into.
var forbiddenPrefixes = []string{"/etc", "/sys", "/proc", "/dev"}

// ValidateCommandRequest performs security checks before command execution.
// It validates:
//  1. Command whitelist (if configured)
//  2. Argument safety (no path traversal, no system directory access)
//  3. Working directory validation (must be within the work dir)
//
// DependencyClient methods call it after constructing a CommandRequest and
// before handing it to the executor.
func ValidateCommandRequest(req CommandRequest, config ExecutorConfig) error {
	if len(config.AllowedCommands) > 0 && !slices.Contains(config.AllowedCommands, req.Command) {
		return fmt.Errorf("command %s is not in whitelist (allowed: %v)", req.Command, config.AllowedCommands)
	}

	for _, arg := range req.Args {
		if hasTraversal(arg) {
			return fmt.Errorf("argument contains dangerous path element '..' (path traversal attempt): %s", arg)
		}
		for _, prefix := range forbiddenPrefixes {
			if arg == prefix || strings.HasPrefix(arg, prefix+"/") {
				return fmt.Errorf("argument attempts to access forbidden system directory %s: %s", prefix, arg)
			}
		}
	}

	if req.WorkingDir != "" {
		pm := NewPathManager(config.WorkDir)
		if err := pm.ValidatePath(req.WorkingDir); err != nil {
			return fmt.Errorf("invalid working directory: %w", err)
		}
	}

	return nil
}

// hasTraversal reports whether any path element of arg is "..".
// File names such as "take..2.mp3" are allowed.
func hasTraversal(arg string) bool {
	for _, elem := range strings.Split(filepath.ToSlash(arg), "/") {
		if elem == ".." {
			return true
		}
	}
	return false
}
