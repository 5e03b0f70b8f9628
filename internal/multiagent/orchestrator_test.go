package multiagent

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/pkg/models"
)

func TestExtractHintParsesJSONNextAgent(t *testing.T) {
	available := []models.Role{models.RoleEngineer, models.RoleAnalyst}
	text := `I think we should proceed. {"next_agent": "engineer", "reason": "needs code"}`
	hint := ExtractHint(text, available)
	if hint.Finish {
		t.Fatal("did not expect finish")
	}
	if hint.NextRole != models.RoleEngineer {
		t.Fatalf("expected engineer, got %s", hint.NextRole)
	}
	if hint.Reason != "needs code" {
		t.Fatalf("expected reason to be parsed, got %q", hint.Reason)
	}
}

func TestExtractHintParsesJSONFinishDecision(t *testing.T) {
	available := []models.Role{models.RoleEngineer}
	text := `{"next_agent": "", "decision": "finish", "reason": "all done"}`
	hint := ExtractHint(text, available)
	if !hint.Finish {
		t.Fatalf("expected finish, got %#v", hint)
	}
}

func TestExtractHintFallsBackToFreeText(t *testing.T) {
	available := []models.Role{models.RoleProduct, models.RoleEngineer}
	hint := ExtractHint("let's hand this to the engineer next", available)
	if hint.NextRole != models.RoleEngineer {
		t.Fatalf("expected engineer via free-text fallback, got %#v", hint)
	}
}

func TestExtractHintFallsBackToFinishToken(t *testing.T) {
	available := []models.Role{models.RoleProduct}
	hint := ExtractHint("nothing more to do here, we are done", available)
	if !hint.Finish {
		t.Fatalf("expected finish via free-text fallback, got %#v", hint)
	}
}

func TestExtractHintDefaultsToFirstAvailable(t *testing.T) {
	available := []models.Role{models.RoleArchitect, models.RoleResearcher}
	hint := ExtractHint("no useful signal in this text at all", available)
	if hint.NextRole != models.RoleArchitect {
		t.Fatalf("expected default to first available role, got %#v", hint)
	}
}

func TestExtractHintFinishesWhenNoneAvailable(t *testing.T) {
	hint := ExtractHint("anything", nil)
	if !hint.Finish {
		t.Fatalf("expected finish when no roles available, got %#v", hint)
	}
}

func TestExtractTodosParsesTodoPrefixAndChecklist(t *testing.T) {
	var sc SessionContext
	text := "Some notes\nTODO: write tests\n- [ ] update docs\nnot a todo line"
	extractTodos(&sc, models.RoleEngineer, text)
	if len(sc.Todos) != 2 {
		t.Fatalf("expected 2 todos, got %d: %#v", len(sc.Todos), sc.Todos)
	}
	if sc.Todos[0].Description != "write tests" || sc.Todos[0].Owner != models.RoleEngineer {
		t.Fatalf("unexpected first todo: %#v", sc.Todos[0])
	}
	if sc.Todos[1].Description != "update docs" {
		t.Fatalf("unexpected second todo: %#v", sc.Todos[1])
	}
}

func TestRemoveRole(t *testing.T) {
	in := []models.Role{models.RoleProduct, models.RoleEngineer, models.RoleAnalyst}
	out := removeRole(in, models.RoleEngineer)
	if len(out) != 2 || out[0] != models.RoleProduct || out[1] != models.RoleAnalyst {
		t.Fatalf("unexpected result: %#v", out)
	}
}

func TestToPersistentStateCarriesFields(t *testing.T) {
	sc := SessionContext{
		ActionLog: []models.ActionLogEntry{{Role: models.RoleEngineer}},
		Todos:     []models.TodoEntry{{Description: "x"}},
		RoleData:  map[models.Role]map[string]any{models.RoleEngineer: {"k": "v"}},
	}
	ps := toPersistentState(sc)
	if len(ps.ActionLog) != 1 || len(ps.Todos) != 1 {
		t.Fatalf("unexpected persistent state: %#v", ps)
	}
	if ps.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set")
	}
}

// --- fake role agents for Orchestrator.Run integration test ---------------

type fakeRoleAgent struct {
	role    models.Role
	content string
}

func (f *fakeRoleAgent) Role() models.Role { return f.role }

func (f *fakeRoleAgent) Act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	return models.AgentRunResult{Role: f.role, Sender: models.SenderAgent, Content: f.content, MessageID: "m-" + string(f.role)}, nil
}

// fakePlanner delegates to engineer once, then finishes.
type fakePlanner struct {
	fakeRoleAgent
	reviewed bool
}

func (f *fakePlanner) PlanNextAgent(ctx context.Context, sc SessionContext, available []models.Role) (models.AgentRunResult, Hint, error) {
	return models.AgentRunResult{Role: models.RolePlanner, Content: "routing to engineer"},
		Hint{NextRole: models.RoleEngineer}, nil
}

func (f *fakePlanner) ReviewAgentOutput(ctx context.Context, sc SessionContext, role models.Role, output models.AgentRunResult, remaining []models.Role) (models.AgentRunResult, Hint, error) {
	f.reviewed = true
	return models.AgentRunResult{Role: models.RolePlanner, Content: "no more work"}, Hint{Finish: true}, nil
}

func (f *fakePlanner) SummarizeTeam(ctx context.Context, sc SessionContext, contributions []models.AgentRunResult) (models.AgentRunResult, error) {
	return models.AgentRunResult{Role: models.RolePlanner, Content: "final summary", MessageID: "summary"}, nil
}

func TestOrchestratorRunDelegatesAndSummarizes(t *testing.T) {
	planner := &fakePlanner{fakeRoleAgent: fakeRoleAgent{role: models.RolePlanner}}
	engineer := &fakeRoleAgent{role: models.RoleEngineer, content: "wrote the code"}

	agents := map[models.Role]RoleAgent{
		models.RoleEngineer: engineer,
	}
	builder := NewContextBuilder(nil)
	orch := NewOrchestrator(planner, agents, builder)

	var persisted []models.Message
	persist := func(sender models.SenderKind, role models.Role, content, messageID string, ts time.Time) models.Message {
		m := models.Message{ID: messageID, Sender: sender, Role: role, Content: content, Timestamp: ts}
		persisted = append(persisted, m)
		return m
	}

	result, state, err := orch.Run(context.Background(), "sess-1", "owner-1", "user-1",
		PersistentState{}, nil, nil, persist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Content != "final summary" {
		t.Fatalf("expected final summary content, got %q", result.Content)
	}
	if !planner.reviewed {
		t.Fatal("expected planner.ReviewAgentOutput to be called")
	}
	if len(state.ActionLog) != 1 || state.ActionLog[0].Role != models.RoleEngineer {
		t.Fatalf("expected engineer's action recorded, got %#v", state.ActionLog)
	}

	stats, ok := orch.LastRunStats("sess-1")
	if !ok {
		t.Fatal("expected stats to be recorded for sess-1")
	}
	_ = stats
}

func TestOrchestratorRunStopsAtMaxIterationsIfPlannerNeverFinishes(t *testing.T) {
	planner := &fakePlanner{fakeRoleAgent: fakeRoleAgent{role: models.RolePlanner}}
	engineer := &fakeRoleAgent{role: models.RoleEngineer, content: "work"}
	agents := map[models.Role]RoleAgent{models.RoleEngineer: engineer}
	builder := NewContextBuilder(nil)
	orch := NewOrchestrator(planner, agents, builder)

	persist := func(sender models.SenderKind, role models.Role, content, messageID string, ts time.Time) models.Message {
		return models.Message{ID: messageID}
	}

	// Only engineer is registered, so a planner hint for any other role would
	// break the loop via the missing-agent guard; this exercises that the
	// loop terminates cleanly either way instead of spinning.
	_, _, err := orch.Run(context.Background(), "sess-2", "owner-1", "user-1",
		PersistentState{}, nil, agent.NopSink{}, persist)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
