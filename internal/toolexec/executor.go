// Package toolexec wires the Tool Executor: registration of the
// session-facing tools, a hook chain for side effects (stream events, async
// job bookkeeping), a policy pre-dispatch filter, and JSON Schema parameter
// validation, layered in front of the teacher's own agent.ToolExecutor
// rather than replacing it.
package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/internal/tools/policy"
)

// ErrUnknownTool is the sentinel surfaced (as an error result, not a Go
// error) when a call names a tool the registry does not have.
var ErrUnknownTool = errors.New("unknown tool")

// ToolCallEvent describes one completed dispatch, passed to every
// registered Hook.
type ToolCallEvent struct {
	SessionID string
	OwnerID   string
	ToolName  string
	Input     json.RawMessage
	Result    *agent.ToolResult
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Hook observes a completed tool call. Hooks never block or abort
// dispatch; a panicking hook is recovered and logged.
type Hook func(ctx context.Context, event ToolCallEvent)

// Executor is the process-wide Tool Executor: lookup, policy filter,
// schema validation, dispatch through agent.ToolExecutor, then the hook
// chain.
type Executor struct {
	inner    *agent.ToolExecutor
	registry *agent.ToolRegistry
	resolver *policy.Resolver
	policy   policy.Policy

	mu      sync.Mutex
	hooks   []Hook
	schemas map[string]*jsonschema.Schema
}

// New builds a Tool Executor around an already-populated registry. resolver
// and pol may be zero-valued to disable policy filtering.
func New(inner *agent.ToolExecutor, registry *agent.ToolRegistry, resolver *policy.Resolver, pol policy.Policy) *Executor {
	return &Executor{
		inner:    inner,
		registry: registry,
		resolver: resolver,
		policy:   pol,
		schemas:  map[string]*jsonschema.Schema{},
	}
}

// AddHook appends a hook to the chain, run in registration order after
// every dispatch (success or failure).
func (x *Executor) AddHook(h Hook) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.hooks = append(x.hooks, h)
}

// ExecuteSingle implements multiagent.ToolCaller: validate identity, filter
// by policy, validate params against the tool's schema, dispatch, then run
// hooks. This is the one path every role agent's tool call goes through.
func (x *Executor) ExecuteSingle(ctx context.Context, name string, input json.RawMessage) (*agent.ToolResult, error) {
	sessionID, ownerID := identityFromContext(ctx)
	if err := validateIdentity(sessionID, ownerID); err != nil {
		return errorResult(err.Error()), nil
	}

	tool, ok := x.registry.Get(name)
	if !ok {
		return errorResult(fmt.Sprintf("%s: %s", ErrUnknownTool, name)), nil
	}

	if x.resolver != nil && !x.resolver.IsAllowed(&x.policy, name) {
		return errorResult(fmt.Sprintf("tool %q is not allowed by policy", name)), nil
	}

	if err := x.validateParams(name, tool.Schema(), input); err != nil {
		return errorResult(err.Error()), nil
	}

	start := time.Now()
	result, err := x.inner.ExecuteSingle(ctx, name, input)
	event := ToolCallEvent{
		SessionID: sessionID,
		OwnerID:   ownerID,
		ToolName:  name,
		Input:     input,
		Result:    result,
		Err:       err,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	x.runHooks(ctx, event)
	return result, err
}

func (x *Executor) runHooks(ctx context.Context, event ToolCallEvent) {
	x.mu.Lock()
	hooks := make([]Hook, len(x.hooks))
	copy(hooks, x.hooks)
	x.mu.Unlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("toolexec: hook panicked", "tool", event.ToolName, "panic", r)
				}
			}()
			hook(ctx, event)
		}()
	}
}

func (x *Executor) validateParams(name string, schema json.RawMessage, input json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := x.compiledSchema(name, schema)
	if err != nil {
		// A tool with a malformed schema shouldn't block every call to it;
		// log once per compile failure via the caller's hook chain instead.
		return nil
	}
	var value any
	if len(input) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(input, &value); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("parameters for %s failed validation: %w", name, err)
	}
	return nil
}

func (x *Executor) compiledSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	x.mu.Lock()
	if s, ok := x.schemas[name]; ok {
		x.mu.Unlock()
		return s, nil
	}
	x.mu.Unlock()

	compiled, err := jsonschema.CompileString("tool_"+name, string(schema))
	if err != nil {
		return nil, err
	}

	x.mu.Lock()
	x.schemas[name] = compiled
	x.mu.Unlock()
	return compiled, nil
}

func identityFromContext(ctx context.Context) (sessionID, ownerID string) {
	if sc, ok := agent.StreamContextFromContext(ctx); ok && sc != nil {
		return sc.SessionID, sc.OwnerID
	}
	return "", ""
}

func validateIdentity(sessionID, ownerID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("tool call missing session_id")
	}
	if strings.TrimSpace(ownerID) == "" {
		return errors.New("tool call missing owner_id")
	}
	if strings.Contains(sessionID, "..") {
		return errors.New("session_id must not contain \"..\"")
	}
	return nil
}

func errorResult(message string) *agent.ToolResult {
	return &agent.ToolResult{Content: message, IsError: true}
}
