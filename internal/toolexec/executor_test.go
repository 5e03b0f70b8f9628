package toolexec

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/internal/tools/policy"
)

type echoTool struct {
	schema json.RawMessage
}

func (t echoTool) Name() string        { return "echo" }
func (t echoTool) Description() string { return "echoes its input" }
func (t echoTool) Schema() json.RawMessage {
	if t.schema != nil {
		return t.schema
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (t echoTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return &agent.ToolResult{Content: string(params)}, nil
}

func newTestExecutor(resolver *policy.Resolver, pol policy.Policy) (*Executor, *agent.ToolRegistry) {
	registry := agent.NewToolRegistry()
	registry.Register(echoTool{})
	inner := agent.NewToolExecutor(registry, agent.DefaultToolExecConfig())
	return New(inner, registry, resolver, pol), registry
}

func withIdentity(sessionID, ownerID string) context.Context {
	sc := agent.NewStreamContext(sessionID, ownerID, nil, nil)
	return agent.WithStreamContext(context.Background(), sc)
}

func TestExecuteSingleUnknownTool(t *testing.T) {
	x, _ := newTestExecutor(nil, policy.Policy{})
	ctx := withIdentity("sess-1", "owner-1")

	result, err := x.ExecuteSingle(ctx, "does_not_exist", nil)
	if err != nil {
		t.Fatalf("ExecuteSingle returned a Go error, want an error ToolResult: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected IsError=true for an unknown tool, got %+v", result)
	}
}

func TestExecuteSingleMissingIdentity(t *testing.T) {
	x, _ := newTestExecutor(nil, policy.Policy{})

	result, err := x.ExecuteSingle(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("ExecuteSingle returned a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected a missing-identity call to be reported as an error result, got %+v", result)
	}
}

func TestExecuteSingleRejectsPathEscapeInSessionID(t *testing.T) {
	x, _ := newTestExecutor(nil, policy.Policy{})
	ctx := withIdentity("../escape", "owner-1")

	result, err := x.ExecuteSingle(ctx, "echo", nil)
	if err != nil {
		t.Fatalf("ExecuteSingle returned a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected a session_id containing '..' to be rejected, got %+v", result)
	}
}

func TestExecuteSingleDeniedByPolicy(t *testing.T) {
	resolver := policy.NewResolver()
	pol := policy.Policy{Profile: policy.ProfileFull, Deny: []string{"echo"}}
	x, _ := newTestExecutor(resolver, pol)
	ctx := withIdentity("sess-1", "owner-1")

	result, err := x.ExecuteSingle(ctx, "echo", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("ExecuteSingle returned a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected a denied tool to surface an error result, got %+v", result)
	}
}

func TestExecuteSingleAllowedByPolicy(t *testing.T) {
	resolver := policy.NewResolver()
	pol := policy.Policy{Profile: policy.ProfileFull}
	x, _ := newTestExecutor(resolver, pol)
	ctx := withIdentity("sess-1", "owner-1")

	result, err := x.ExecuteSingle(ctx, "echo", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected the call to succeed under the full profile, got %+v", result)
	}
}

func TestExecuteSingleSchemaValidationRejectsMissingRequiredField(t *testing.T) {
	registry := agent.NewToolRegistry()
	registry.Register(echoTool{schema: json.RawMessage(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`)})
	inner := agent.NewToolExecutor(registry, agent.DefaultToolExecConfig())
	x := New(inner, registry, nil, policy.Policy{})
	ctx := withIdentity("sess-1", "owner-1")

	result, err := x.ExecuteSingle(ctx, "echo", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected schema validation to reject a missing required field, got %+v", result)
	}

	ok, err := x.ExecuteSingle(ctx, "echo", json.RawMessage(`{"name":"alice"}`))
	if err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if ok.IsError {
		t.Fatalf("expected valid parameters to pass schema validation, got %+v", ok)
	}
}

func TestRunHooksRecoversPanicAndRunsRemainingHooks(t *testing.T) {
	x, _ := newTestExecutor(nil, policy.Policy{})
	ctx := withIdentity("sess-1", "owner-1")

	var calledSecond bool
	x.AddHook(func(ctx context.Context, event ToolCallEvent) {
		panic("boom")
	})
	x.AddHook(func(ctx context.Context, event ToolCallEvent) {
		calledSecond = true
	})

	if _, err := x.ExecuteSingle(ctx, "echo", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("ExecuteSingle: %v", err)
	}
	if !calledSecond {
		t.Fatalf("expected the second hook to still run after the first panicked")
	}
}
