package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/codeteam/internal/agent"
)

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// sessionIdentity pulls the session/owner pair the toolexec.Executor
// already validated before dispatch out of the ambient stream context, the
// same accessor internal/toolexec uses.
func sessionIdentity(ctx context.Context) (sessionID, ownerID string, ok bool) {
	sc, present := agent.StreamContextFromContext(ctx)
	if !present || sc == nil {
		return "", "", false
	}
	return sc.SessionID, sc.OwnerID, true
}

func schemaOrFallback(schema map[string]any) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func toolError(format string, args ...any) *agent.ToolResult {
	return &agent.ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// FileWriteTool registers as "file_write": write_file against a session's
// sandbox workspace.
type FileWriteTool struct {
	files *FileService
}

// NewFileWriteTool returns a file_write tool backed by files.
func NewFileWriteTool(files *FileService) *FileWriteTool {
	return &FileWriteTool{files: files}
}

func (t *FileWriteTool) Name() string { return "file_write" }

func (t *FileWriteTool) Description() string {
	return "Write content to a file in the session's sandbox workspace, creating parent directories as needed."
}

func (t *FileWriteTool) Schema() json.RawMessage {
	return schemaOrFallback(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":      map[string]any{"type": "string", "description": "Path relative to the workspace root."},
			"content":   map[string]any{"type": "string", "description": "File contents to write."},
			"overwrite": map[string]any{"type": "boolean", "description": "Overwrite an existing file (default: false)."},
			"append":    map[string]any{"type": "boolean", "description": "Append instead of overwrite (default: false)."},
		},
		"required": []string{"path", "content"},
	})
}

func (t *FileWriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	sessionID, _, ok := sessionIdentity(ctx)
	if !ok {
		return toolError("file_write requires an active session"), nil
	}
	var input struct {
		Path      string `json:"path"`
		Content   string `json:"content"`
		Overwrite bool   `json:"overwrite"`
		Append    bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError("invalid parameters: %v", err), nil
	}
	info, err := t.files.WriteFile(sessionID, input.Path, input.Content, input.Overwrite, input.Append)
	if err != nil {
		return toolError("%v", err), nil
	}
	payload, _ := json.Marshal(info)
	return &agent.ToolResult{Content: string(payload)}, nil
}

// FileReadTool registers as "file_read": read_file against a session's
// sandbox workspace.
type FileReadTool struct {
	files *FileService
}

// NewFileReadTool returns a file_read tool backed by files.
func NewFileReadTool(files *FileService) *FileReadTool {
	return &FileReadTool{files: files}
}

func (t *FileReadTool) Name() string { return "file_read" }

func (t *FileReadTool) Description() string {
	return "Read a file's contents from the session's sandbox workspace."
}

func (t *FileReadTool) Schema() json.RawMessage {
	return schemaOrFallback(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Path relative to the workspace root."},
		},
		"required": []string{"path"},
	})
}

func (t *FileReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	sessionID, _, ok := sessionIdentity(ctx)
	if !ok {
		return toolError("file_read requires an active session"), nil
	}
	var input struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError("invalid parameters: %v", err), nil
	}
	info, err := t.files.ReadFile(sessionID, input.Path)
	if err != nil {
		return toolError("%v", err), nil
	}
	payload, _ := json.Marshal(info)
	return &agent.ToolResult{Content: string(payload)}, nil
}

// SandboxShellTool registers as "sandbox_shell": run_command inside a
// session's container.
type SandboxShellTool struct {
	commands *SandboxCommandService
}

// NewSandboxShellTool returns a sandbox_shell tool backed by commands.
func NewSandboxShellTool(commands *SandboxCommandService) *SandboxShellTool {
	return &SandboxShellTool{commands: commands}
}

func (t *SandboxShellTool) Name() string { return "sandbox_shell" }

func (t *SandboxShellTool) Description() string {
	return "Run a shell command inside the session's sandbox container and return its output."
}

func (t *SandboxShellTool) Schema() json.RawMessage {
	return schemaOrFallback(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":         map[string]any{"type": "string", "description": "Shell command to run."},
			"cwd":             map[string]any{"type": "string", "description": "Working directory relative to /workspace."},
			"timeout_seconds": map[string]any{"type": "integer", "description": "Command timeout in seconds (default 120)."},
		},
		"required": []string{"command"},
	})
}

func (t *SandboxShellTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	sessionID, ownerID, ok := sessionIdentity(ctx)
	if !ok {
		return toolError("sandbox_shell requires an active session"), nil
	}
	var input struct {
		Command        string `json:"command"`
		Cwd            string `json:"cwd"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError("invalid parameters: %v", err), nil
	}
	timeout := DefaultCommandTimeout
	if input.TimeoutSeconds > 0 {
		timeout = secondsToDuration(input.TimeoutSeconds)
	}
	result, err := t.commands.RunCommand(ctx, sessionID, ownerID, input.Cwd, input.Command, timeout)
	if err != nil {
		return toolError("%v", err), nil
	}
	payload, _ := json.Marshal(result)
	if result.ExitCode != 0 || result.TimedOut {
		return &agent.ToolResult{Content: string(payload), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
