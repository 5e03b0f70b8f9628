package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// LLMInteraction is one recorded prompt/response pair for a role invocation.
type LLMInteraction struct {
	Role          models.Role `json:"role"`
	Kind          string      `json:"kind"` // e.g. "act", "plan_next_agent", "review_agent_output", "summarize_team"
	Provider      string      `json:"provider"`
	Prompt        string      `json:"prompt"`
	RawResponse   string      `json:"raw_response"`
	FinalResponse string      `json:"final_response"`
	Timestamp     time.Time   `json:"timestamp"`
}

// LLMInteractionLogger records LLM interactions to a persistent per-session log.
type LLMInteractionLogger interface {
	Log(sessionID string, interaction LLMInteraction) error
}

// FileLLMLogger appends LLM interactions to "<base>/sessions/<id>_llm.json"
// as a JSON array, rewritten atomically on every append.
type FileLLMLogger struct {
	basePath string
	mu       sync.Mutex
}

// NewFileLLMLogger creates a logger rooted at basePath.
func NewFileLLMLogger(basePath string) *FileLLMLogger {
	return &FileLLMLogger{basePath: basePath}
}

func (l *FileLLMLogger) path(sessionID string) string {
	return filepath.Join(l.basePath, "sessions", sessionID+"_llm.json")
}

// Log appends an interaction, rewriting the file atomically.
func (l *FileLLMLogger) Log(sessionID string, interaction LLMInteraction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.path(sessionID)
	var entries []LLMInteraction

	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &entries)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read llm log: %w", err)
	}

	entries = append(entries, interaction)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir llm log dir: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal llm log: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write llm log temp: %w", err)
	}
	return os.Rename(tmp, path)
}

// NopLLMLogger discards all interactions.
type NopLLMLogger struct{}

// Log does nothing.
func (NopLLMLogger) Log(string, LLMInteraction) error { return nil }
