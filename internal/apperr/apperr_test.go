package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", Unauthorized("nope"), http.StatusUnauthorized},
		{"not_found", NotFound("nope"), http.StatusNotFound},
		{"bad_request", BadRequest("nope"), http.StatusBadRequest},
		{"conflict", Conflict("nope"), http.StatusBadRequest},
		{"timeout", Timeout("nope"), http.StatusRequestTimeout},
		{"sandbox", Wrap(KindSandbox, "boom", errors.New("x")), http.StatusInternalServerError},
		{"llm_provider", Wrap(KindLLMProvider, "rate limited", errors.New("x")), http.StatusTooManyRequests},
		{"internal", Internal(errors.New("x")), http.StatusInternalServerError},
		{"tool_execution (unmapped, falls back to 500)", New(KindToolExecution, "tool failed"), http.StatusInternalServerError},
		{"plain error", errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusFor(tc.err); got != tc.want {
				t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestSafeMessageHidesInternals(t *testing.T) {
	wrapped := fmt.Errorf("query failed: %w", errors.New("password=hunter2"))
	if msg := SafeMessage(wrapped); msg != "internal error" {
		t.Fatalf("expected generic fallback for unclassified error, got %q", msg)
	}

	appErr := NotFound("session not found")
	if msg := SafeMessage(appErr); msg != "session not found" {
		t.Fatalf("expected AppError message to pass through, got %q", msg)
	}
}

func TestAsAndUnwrap(t *testing.T) {
	underlying := errors.New("disk full")
	wrapped := fmt.Errorf("write failed: %w", Wrap(KindSandbox, "sandbox write failed", underlying))

	appErr, ok := As(wrapped)
	if !ok {
		t.Fatalf("expected As to find the wrapped AppError")
	}
	if appErr.Kind != KindSandbox {
		t.Fatalf("unexpected kind: %v", appErr.Kind)
	}
	if !errors.Is(appErr, underlying) {
		t.Fatalf("expected Unwrap chain to reach the underlying error")
	}
}
