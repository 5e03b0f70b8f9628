package toolexec

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/haasonsaas/codeteam/internal/jobs"
	"github.com/haasonsaas/codeteam/pkg/models"
)

// JobsHook records every dispatched tool call as a completed job in store,
// giving the job_status/job_list/job_cancel tools (internal/tools/jobs)
// something to report on even though ExecuteSingle itself runs
// synchronously. A long-running tool that wants live progress can still
// create its own Job through store directly; this hook only back-fills the
// record for ordinary calls.
func JobsHook(store jobs.Store) Hook {
	return func(ctx context.Context, event ToolCallEvent) {
		if store == nil {
			return
		}
		job := &jobs.Job{
			ID:        uuid.NewString(),
			ToolName:  event.ToolName,
			Status:    jobs.StatusSucceeded,
			CreatedAt: event.StartedAt,
		}
		if event.Err != nil {
			job.Status = jobs.StatusFailed
			job.Error = event.Err.Error()
		} else if event.Result != nil {
			if event.Result.IsError {
				job.Status = jobs.StatusFailed
				job.Error = event.Result.Content
			}
			job.Result = &models.ToolResult{
				Content: event.Result.Content,
				IsError: event.Result.IsError,
			}
		}
		job.StartedAt = job.CreatedAt
		job.FinishedAt = job.CreatedAt.Add(event.Duration)
		if err := store.Create(ctx, job); err != nil {
			slog.Warn("toolexec: failed to record job", "tool", event.ToolName, "error", err)
		}
	}
}
