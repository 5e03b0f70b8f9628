package sandbox

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// CommandResult is the outcome of a SandboxCommandService.RunCommand call.
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
}

// DefaultCommandTimeout bounds a sandbox_shell call when the caller doesn't
// set one explicitly.
const DefaultCommandTimeout = 2 * time.Minute

// SandboxCommandService runs shell commands inside a session's container,
// the counterpart to FileService for the sandbox_shell tool.
type SandboxCommandService struct {
	manager *Manager
}

// NewSandboxCommandService returns a command service backed by manager.
func NewSandboxCommandService(manager *Manager) *SandboxCommandService {
	return &SandboxCommandService{manager: manager}
}

// RunCommand executes command inside sessionID's container, resolving cwd
// relative to /workspace (container-absolute paths and the empty string are
// both accepted), ensuring the container exists first and marking it active
// both before and after the run.
func (s *SandboxCommandService) RunCommand(ctx context.Context, sessionID, ownerID, cwd, command string, timeout time.Duration) (CommandResult, error) {
	if strings.TrimSpace(command) == "" {
		return CommandResult{}, fmt.Errorf("command must not be empty")
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	inst, err := s.manager.EnsureSessionContainer(ctx, sessionID, ownerID)
	if err != nil {
		return CommandResult{}, fmt.Errorf("ensure sandbox container: %w", err)
	}
	s.manager.MarkActive(sessionID)

	resolvedCwd := resolveContainerCwd(cwd)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.manager.runtime.Exec(runCtx, inst.ContainerName, resolvedCwd, command, nil)
	s.manager.MarkActive(sessionID)
	if runCtx.Err() == context.DeadlineExceeded {
		return CommandResult{TimedOut: true, Stdout: result.Stdout, Stderr: result.Stderr}, nil
	}
	if err != nil {
		return CommandResult{}, fmt.Errorf("run sandbox command: %w", err)
	}
	return CommandResult{
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}, nil
}

// resolveContainerCwd maps an empty cwd to the workspace root, leaves an
// absolute container path untouched, and joins a relative one onto
// /workspace.
func resolveContainerCwd(cwd string) string {
	cwd = strings.TrimSpace(cwd)
	if cwd == "" {
		return "/workspace"
	}
	if path.IsAbs(cwd) {
		return path.Clean(cwd)
	}
	return path.Join("/workspace", cwd)
}
