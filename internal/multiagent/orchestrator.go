package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/pkg/models"
)

// delegateRoles is the dispatch order of specialist roles available to the
// planner, excluding the planner itself.
var delegateRoles = []models.Role{
	models.RoleProduct, models.RoleArchitect, models.RoleEngineer,
	models.RoleResearcher, models.RoleAnalyst,
}

// Orchestrator runs the planner-led sequential delegation loop over a
// session's closed set of role agents.
type Orchestrator struct {
	planner PlannerRoleAgent
	agents  map[models.Role]RoleAgent
	builder *ContextBuilder

	mu    sync.Mutex
	stats map[string]*agent.StatsCollector
}

// NewOrchestrator builds an Orchestrator over the planner and the specialist
// agents keyed by role.
func NewOrchestrator(planner PlannerRoleAgent, agents map[models.Role]RoleAgent, builder *ContextBuilder) *Orchestrator {
	return &Orchestrator{
		planner: planner,
		agents:  agents,
		builder: builder,
		stats:   make(map[string]*agent.StatsCollector),
	}
}

// LastRunStats returns the accumulated RunStats from a session's most recent
// Run invocation, if any.
func (o *Orchestrator) LastRunStats(sessionID string) (models.RunStats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	collector, ok := o.stats[sessionID]
	if !ok {
		return models.RunStats{}, false
	}
	return *collector.Stats(), true
}

// Run executes the planner-led delegation loop for one user turn and
// returns the planner's final summarized answer plus the updated persistent
// state to save back to the session.
func (o *Orchestrator) Run(
	ctx context.Context,
	sessionID, ownerID, userID string,
	state PersistentState,
	messages []models.Message,
	publisher agent.EventSink,
	persist agent.PersistFunc,
) (models.AgentRunResult, PersistentState, error) {
	runID := uuid.NewString()
	collector := agent.NewStatsCollector(runID)

	o.mu.Lock()
	o.stats[sessionID] = collector
	o.mu.Unlock()

	statsSink := agent.NewCallbackSink(collector.OnEvent)
	sink := publisher
	if sink != nil {
		sink = agent.NewMultiSink(publisher, statsSink)
	} else {
		sink = statsSink
	}

	sc := agent.NewStreamContext(sessionID, ownerID, sink, persist)
	ctx = agent.WithStreamContext(ctx, sc)

	sc.Emitter.RunStarted(ctx)
	defer func() { sc.Emitter.RunFinished(ctx, nil) }()

	available := append([]models.Role(nil), delegateRoles...)
	sctx := o.builder.Build(sessionID, ownerID, userID, state, messages)

	statusID := uuid.NewString()
	sc.Emitter.Status(ctx, statusID, "planner is evaluating the task")

	plannerView := sctx.ForAgent(models.RolePlanner, SystemPromptFor(models.RolePlanner), nil)
	_, hint, err := o.planner.PlanNextAgent(ctx, plannerView.SessionContext, available)
	if err != nil {
		sc.Emitter.RunError(ctx, err, false)
		return models.AgentRunResult{}, toPersistentState(sctx), fmt.Errorf("plan_next_agent: %w", err)
	}

	var contributions []models.AgentRunResult

	for i := 0; i < MaxIterations && !hint.Finish; i++ {
		role := hint.NextRole
		roleAgent, ok := o.agents[role]
		if !ok {
			break
		}

		view := sctx.ForAgent(role, SystemPromptFor(role), nil)
		result, err := roleAgent.Act(ctx, view)

		entry := models.ActionLogEntry{
			Role:      role,
			Action:    "act",
			Timestamp: time.Now(),
			Status:    models.ActionStatusSuccess,
		}
		if err != nil {
			entry.Status = models.ActionStatusFailure
			entry.Result = err.Error()
			sctx.AppendActionLog(entry)
			sc.Emitter.RunError(ctx, err, true)
		} else {
			entry.Result = result.Content
			sctx.AppendActionLog(entry)
			contributions = append(contributions, result)
			extractTodos(&sctx, role, result.Content)
		}

		available = removeRole(available, role)

		sctx = o.builder.Build(sessionID, ownerID, userID, toPersistentState(sctx), messages)

		if len(available) == 0 {
			hint = Hint{Finish: true}
			break
		}

		_, nextHint, reviewErr := o.planner.ReviewAgentOutput(ctx, sctx, role, result, available)
		if reviewErr != nil {
			sc.Emitter.RunError(ctx, reviewErr, false)
			hint = Hint{Finish: true}
			break
		}
		hint = nextHint
	}

	sc.Emitter.Status(ctx, uuid.NewString(), "planner is summarizing the team's work")
	final, err := o.planner.SummarizeTeam(ctx, sctx, contributions)
	if err != nil {
		sc.Emitter.RunError(ctx, err, false)
		return models.AgentRunResult{}, toPersistentState(sctx), fmt.Errorf("summarize_team: %w", err)
	}

	return final, toPersistentState(sctx), nil
}

func toPersistentState(sc SessionContext) PersistentState {
	return PersistentState{
		ActionLog: sc.ActionLog,
		Todos:     sc.Todos,
		RoleData:  sc.RoleData,
		UpdatedAt: time.Now(),
	}
}

func removeRole(roles []models.Role, target models.Role) []models.Role {
	out := make([]models.Role, 0, len(roles))
	for _, r := range roles {
		if r != target {
			out = append(out, r)
		}
	}
	return out
}

// extractTodos scans a role agent's output for "todo:" lines or "- [ ]"
// checklist items and appends them to the session's TODO list.
func extractTodos(sc *SessionContext, owner models.Role, text string) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		var description string
		switch {
		case strings.HasPrefix(lower, "todo:"):
			description = strings.TrimSpace(trimmed[len("todo:"):])
		case strings.HasPrefix(trimmed, "- [ ]"):
			description = strings.TrimSpace(trimmed[len("- [ ]"):])
		default:
			continue
		}
		if description == "" {
			continue
		}
		sc.AppendTodo(models.TodoEntry{
			Description: description,
			Owner:       owner,
			Status:      models.TodoStatusPending,
			Timestamp:   time.Now(),
		})
	}
}

// ExtractHint parses a planner's free-form response for a routing decision.
// It first looks for a JSON object with a next_agent field, then falls back
// to scanning the text for a known role name, and finally defaults to the
// first available role as a fail-safe.
func ExtractHint(text string, available []models.Role) Hint {
	if obj, ok := extractJSONObject(text); ok {
		var parsed struct {
			NextAgent string `json:"next_agent"`
			Decision  string `json:"decision"`
			Reason    string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			if isFinishToken(parsed.NextAgent) || strings.EqualFold(parsed.Decision, "finish") {
				return Hint{Finish: true, Reason: parsed.Reason}
			}
			if role, ok := matchRole(parsed.NextAgent, available); ok {
				return Hint{NextRole: role, Reason: parsed.Reason}
			}
		}
	}

	lower := strings.ToLower(text)
	for token := range FinishTokens {
		if strings.Contains(lower, token) {
			return Hint{Finish: true}
		}
	}
	for _, role := range available {
		if strings.Contains(lower, string(role)) {
			return Hint{NextRole: role}
		}
	}

	if len(available) == 0 {
		return Hint{Finish: true}
	}
	return Hint{NextRole: available[0]}
}

func isFinishToken(s string) bool {
	return FinishTokens[strings.ToLower(strings.TrimSpace(s))]
}

func matchRole(name string, available []models.Role) (models.Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, role := range available {
		if string(role) == name {
			return role, true
		}
	}
	return "", false
}

// extractJSONObject returns the first balanced {...} substring in text, if
// any.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// emitterFromContext retrieves the turn's event emitter, if a StreamContext
// has been attached to ctx.
func emitterFromContext(ctx context.Context) *agent.EventEmitter {
	sc, ok := agent.StreamContextFromContext(ctx)
	if !ok || sc == nil {
		return nil
	}
	return sc.Emitter
}

// sessionIDOf returns sc.SessionID, or "" if sc is nil.
func sessionIDOf(sc *agent.StreamContext) string {
	if sc == nil {
		return ""
	}
	return sc.SessionID
}
