// Package multiagent implements the planner-led sequential orchestration of
// the six closed role agents (planner, product, architect, engineer,
// researcher, analyst) over a session.
package multiagent

import (
	"context"
	"time"

	"github.com/haasonsaas/codeteam/pkg/models"
)

// MaxIterations bounds the orchestrator's delegation loop.
const MaxIterations = 6

// FinishTokens are the tokens that signal "no further delegation".
var FinishTokens = map[string]bool{
	"finish":   true,
	"done":     true,
	"complete": true,
	"完成":       true,
	"结束":       true,
}

// RoleAgent is the common contract every role implementation satisfies.
type RoleAgent interface {
	Role() models.Role
	Act(ctx context.Context, view RoleView) (models.AgentRunResult, error)
}

// PlannerRoleAgent extends RoleAgent with the planner's extra responsibilities.
type PlannerRoleAgent interface {
	RoleAgent
	PlanNextAgent(ctx context.Context, sc SessionContext, available []models.Role) (models.AgentRunResult, Hint, error)
	ReviewAgentOutput(ctx context.Context, sc SessionContext, role models.Role, output models.AgentRunResult, remaining []models.Role) (models.AgentRunResult, Hint, error)
	SummarizeTeam(ctx context.Context, sc SessionContext, contributions []models.AgentRunResult) (models.AgentRunResult, error)
}

// Hint is the parsed routing decision extracted from a planner's text.
type Hint struct {
	NextRole models.Role
	Finish   bool
	Reason   string
}

// RoleView is the role-scoped projection of a SessionContext, built by
// (SessionContext).ForAgent.
type RoleView struct {
	SessionContext
	Role         models.Role
	SystemPrompt string
	Overrides    map[string]any
	PrivateData  map[string]any
}

// SessionContext is the per-turn working projection described in the data
// model: persistent state (action log, todos, per-role data) combined with
// freshly collected history, files overview, and artifacts summary.
type SessionContext struct {
	SessionID  string
	OwnerID    string
	UserID     string

	UserMessages      []string // ordered, oldest first
	LastUserMessage   string
	HistoryDigest     string
	ArtifactsSummary  []string
	FilesOverview     []string

	ActionLog []models.ActionLogEntry // bounded FIFO, <= 10
	Todos     []models.TodoEntry      // bounded FIFO, <= 20

	// RoleData is keyed by role and never shared across roles.
	RoleData map[models.Role]map[string]any
}

const (
	MaxActionLogEntries = 10
	MaxTodoEntries      = 20
)

// ForAgent builds the role-scoped view for a given role, merging the role's
// private data slot with any one-off overrides.
func (sc SessionContext) ForAgent(role models.Role, systemPrompt string, overrides map[string]any) RoleView {
	private := map[string]any{}
	if sc.RoleData != nil {
		for k, v := range sc.RoleData[role] {
			private[k] = v
		}
	}
	return RoleView{
		SessionContext: sc,
		Role:           role,
		SystemPrompt:   systemPrompt,
		Overrides:      overrides,
		PrivateData:    private,
	}
}

// AppendActionLog appends an entry, evicting the oldest if over the bound.
func (sc *SessionContext) AppendActionLog(entry models.ActionLogEntry) {
	if len(entry.Result) > 400 {
		entry.Result = entry.Result[:400]
	}
	sc.ActionLog = append(sc.ActionLog, entry)
	if len(sc.ActionLog) > MaxActionLogEntries {
		sc.ActionLog = sc.ActionLog[len(sc.ActionLog)-MaxActionLogEntries:]
	}
}

// AppendTodo appends a TODO entry, evicting the oldest if over the bound.
func (sc *SessionContext) AppendTodo(entry models.TodoEntry) {
	sc.Todos = append(sc.Todos, entry)
	if len(sc.Todos) > MaxTodoEntries {
		sc.Todos = sc.Todos[len(sc.Todos)-MaxTodoEntries:]
	}
}

// PersistentState is the durable part of SessionContext that survives turns.
type PersistentState struct {
	ActionLog []models.ActionLogEntry            `json:"action_log"`
	Todos     []models.TodoEntry                 `json:"todos"`
	RoleData  map[models.Role]map[string]any     `json:"role_data,omitempty"`
	UpdatedAt time.Time                          `json:"updated_at"`
}
