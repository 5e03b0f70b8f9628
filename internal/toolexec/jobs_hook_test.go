package toolexec

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/internal/jobs"
)

func TestJobsHookRecordsSuccess(t *testing.T) {
	store := jobs.NewMemoryStore()
	hook := JobsHook(store)

	start := time.Now()
	hook(context.Background(), ToolCallEvent{
		ToolName:  "echo",
		Result:    &agent.ToolResult{Content: "hi"},
		StartedAt: start,
		Duration:  5 * time.Millisecond,
	})

	recorded, err := store.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected exactly one recorded job, got %d", len(recorded))
	}
	job := recorded[0]
	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("expected StatusSucceeded, got %v", job.Status)
	}
	if job.Result == nil || job.Result.Content != "hi" {
		t.Fatalf("expected the tool result content to be recorded, got %+v", job.Result)
	}
}

func TestJobsHookRecordsDispatchError(t *testing.T) {
	store := jobs.NewMemoryStore()
	hook := JobsHook(store)

	hook(context.Background(), ToolCallEvent{
		ToolName:  "echo",
		Err:       context.DeadlineExceeded,
		StartedAt: time.Now(),
	})

	recorded, err := store.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected exactly one recorded job, got %d", len(recorded))
	}
	if recorded[0].Status != jobs.StatusFailed {
		t.Fatalf("expected StatusFailed for a dispatch error, got %v", recorded[0].Status)
	}
	if recorded[0].Error == "" {
		t.Fatalf("expected an error message to be recorded")
	}
}

func TestJobsHookRecordsToolErrorResult(t *testing.T) {
	store := jobs.NewMemoryStore()
	hook := JobsHook(store)

	hook(context.Background(), ToolCallEvent{
		ToolName:  "echo",
		Result:    &agent.ToolResult{Content: "boom", IsError: true},
		StartedAt: time.Now(),
	})

	recorded, err := store.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recorded) != 1 {
		t.Fatalf("expected exactly one recorded job, got %d", len(recorded))
	}
	if recorded[0].Status != jobs.StatusFailed {
		t.Fatalf("expected StatusFailed when the tool result itself is an error, got %v", recorded[0].Status)
	}
	if recorded[0].Error != "boom" {
		t.Fatalf("expected the error message to come from the tool result content, got %q", recorded[0].Error)
	}
}

func TestJobsHookNilStoreIsNoop(t *testing.T) {
	hook := JobsHook(nil)
	hook(context.Background(), ToolCallEvent{ToolName: "echo"})
}
