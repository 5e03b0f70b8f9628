package multiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/internal/sessions"
	"github.com/haasonsaas/codeteam/pkg/models"
)

// ToolCaller executes a single named tool call with JSON params and returns
// its textual result.
type ToolCaller interface {
	ExecuteSingle(ctx context.Context, name string, input json.RawMessage) (*agent.ToolResult, error)
}

// baseAgent implements the common role-agent contract (§4.2 "Common
// behavior"): compose a prompt, stream it, publish token events, log the
// interaction, and return an AgentRunResult. Role-specific agents embed it
// and supply their own system prompt and post-processing.
type baseAgent struct {
	role     models.Role
	provider agent.LLMProvider
	model    string
	logger   sessions.LLMInteractionLogger
	tools    ToolCaller
}

func newBaseAgent(role models.Role, provider agent.LLMProvider, model string, logger sessions.LLMInteractionLogger, tools ToolCaller) baseAgent {
	if logger == nil {
		logger = sessions.NopLLMLogger{}
	}
	return baseAgent{role: role, provider: provider, model: model, logger: logger, tools: tools}
}

func (b *baseAgent) Role() models.Role { return b.role }

// composeUserMessage assembles the user-turn content from the context view's
// shared fields, per §4.2 item 1.
func composeUserMessage(view RoleView) string {
	var sb strings.Builder
	if view.HistoryDigest != "" {
		sb.WriteString("## Recent activity\n")
		sb.WriteString(view.HistoryDigest)
		sb.WriteString("\n\n")
	}
	if len(view.ArtifactsSummary) > 0 {
		sb.WriteString("## Known artifacts\n")
		for _, a := range view.ArtifactsSummary {
			sb.WriteString("- " + a + "\n")
		}
		sb.WriteString("\n")
	}
	if len(view.FilesOverview) > 0 {
		sb.WriteString("## Workspace files\n")
		for _, f := range view.FilesOverview {
			sb.WriteString("- " + f + "\n")
		}
		sb.WriteString("\n")
	}
	if len(view.ActionLog) > 0 {
		sb.WriteString("## Action log\n")
		for _, e := range view.ActionLog {
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s (%s)\n", e.Role, e.Action, e.Result, e.Status))
		}
		sb.WriteString("\n")
	}
	if len(view.Todos) > 0 {
		sb.WriteString("## Pending TODOs\n")
		for _, t := range view.Todos {
			sb.WriteString(fmt.Sprintf("- [%s] %s (%s)\n", t.Status, t.Description, t.Owner))
		}
		sb.WriteString("\n")
	}
	if len(view.PrivateData) > 0 {
		sb.WriteString("## Role notes\n")
		for k, v := range view.PrivateData {
			sb.WriteString(fmt.Sprintf("- %s: %v\n", k, v))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("## Current request\n")
	sb.WriteString(view.LastUserMessage)
	return sb.String()
}

// stream performs common behavior steps 2-6: stream a completion, publish
// token events, log the interaction, and return the aggregated text.
func (b *baseAgent) stream(ctx context.Context, kind, systemPrompt, userMessage string) (string, error) {
	sc, _ := agent.StreamContextFromContext(ctx)
	messageID := uuid.NewString()

	req := &agent.CompletionRequest{
		Model:  b.model,
		System: systemPrompt,
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: userMessage},
		},
	}

	chunks, err := b.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("role %s: llm provider error: %w", b.role, err)
	}

	var raw strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return raw.String(), fmt.Errorf("role %s: llm stream error: %w", b.role, chunk.Error)
		}
		if chunk.Text != "" {
			raw.WriteString(chunk.Text)
			emitToken(ctx, sc, b.role, messageID, chunk.Text, false, false)
		}
	}

	final := raw.String()
	emitToken(ctx, sc, b.role, messageID, final, true, false)

	_ = b.logger.Log(sessionIDOf(sc), sessions.LLMInteraction{
		Role:          b.role,
		Kind:          kind,
		Provider:      b.provider.Name(),
		Prompt:        systemPrompt + "\n\n" + userMessage,
		RawResponse:   final,
		FinalResponse: final,
	})

	return final, nil
}

func emitToken(ctx context.Context, sc *agent.StreamContext, role models.Role, messageID, delta string, final, persistFinal bool) {
	emitter := emitterFromContext(ctx)
	if emitter == nil {
		return
	}
	emitter.Token(ctx, models.SenderAgent, role, messageID, delta, final, persistFinal)
}

// finalize publishes the terminal, persisted message event for an agent's
// aggregated output and returns the AgentRunResult.
func (b *baseAgent) finalize(ctx context.Context, content string) models.AgentRunResult {
	sc, _ := agent.StreamContextFromContext(ctx)
	messageID := uuid.NewString()
	if emitter := emitterFromContext(ctx); emitter != nil {
		emitter.Message(ctx, models.SenderAgent, b.role, messageID, content)
	}
	if sc != nil && sc.Persist != nil {
		sc.Persist(models.SenderAgent, b.role, content, messageID, time.Now())
	}
	return models.AgentRunResult{
		Role:      b.role,
		Sender:    models.SenderAgent,
		Content:   content,
		MessageID: messageID,
	}
}

// --- Planner ---------------------------------------------------------------

// PlannerAgent is the planning-lead role: it additionally routes work and
// synthesizes the team's final answer.
type PlannerAgent struct {
	baseAgent
}

// NewPlannerAgent constructs a PlannerAgent.
func NewPlannerAgent(provider agent.LLMProvider, model string, logger sessions.LLMInteractionLogger) *PlannerAgent {
	return &PlannerAgent{baseAgent: newBaseAgent(models.RolePlanner, provider, model, logger, nil)}
}

// Act implements RoleAgent for ad hoc planner invocations.
func (p *PlannerAgent) Act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	text, err := p.stream(ctx, "act", view.SystemPrompt, composeUserMessage(view))
	if err != nil {
		return models.AgentRunResult{}, err
	}
	return p.finalize(ctx, formatPlannerText(text)), nil
}

// PlanNextAgent chooses the first role agent to delegate to.
func (p *PlannerAgent) PlanNextAgent(ctx context.Context, sc SessionContext, available []models.Role) (models.AgentRunResult, Hint, error) {
	prompt := fmt.Sprintf(
		"Decide which specialist role should act next for this request: %s\n\n"+
			"Available roles: %s\n\n"+
			`Respond with a JSON object {"next_agent": "<role>", "reason": "<why>"}.`,
		sc.LastUserMessage, joinRoles(available))
	text, err := p.stream(ctx, "plan_next_agent", SystemPromptFor(models.RolePlanner), prompt)
	if err != nil {
		return models.AgentRunResult{}, Hint{}, err
	}
	hint := ExtractHint(text, available)
	return p.finalize(ctx, formatPlannerText(text)), hint, nil
}

// ReviewAgentOutput reviews a role's completed output and decides the next
// delegation (or finish).
func (p *PlannerAgent) ReviewAgentOutput(ctx context.Context, sc SessionContext, role models.Role, output models.AgentRunResult, remaining []models.Role) (models.AgentRunResult, Hint, error) {
	prompt := fmt.Sprintf(
		"The %s role just produced:\n%s\n\nRemaining roles: %s\n\n"+
			`Decide whether more work is needed. Respond with {"next_agent": "<role or finish>", "decision": "continue|finish", "reason": "<why>"}.`,
		role, truncate(output.Content, 2000), joinRoles(remaining))
	text, err := p.stream(ctx, "review_agent_output", SystemPromptFor(models.RolePlanner), prompt)
	if err != nil {
		return models.AgentRunResult{}, Hint{}, err
	}
	hint := ExtractHint(text, remaining)
	return p.finalize(ctx, formatPlannerText(text)), hint, nil
}

// SummarizeTeam produces the final, user-visible answer from all role
// contributions collected during the turn.
func (p *PlannerAgent) SummarizeTeam(ctx context.Context, sc SessionContext, contributions []models.AgentRunResult) (models.AgentRunResult, error) {
	var sb strings.Builder
	for _, c := range contributions {
		sb.WriteString(fmt.Sprintf("### %s\n%s\n\n", c.Role, c.Content))
	}
	prompt := "Summarize the team's work into one final answer for the user:\n\n" + sb.String()
	text, err := p.stream(ctx, "summarize_team", SystemPromptFor(models.RolePlanner), prompt)
	if err != nil {
		return models.AgentRunResult{}, err
	}
	return p.finalize(ctx, formatPlannerText(text)), nil
}

func joinRoles(roles []models.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// formatPlannerText re-renders a planner JSON hint payload into a
// human-readable labelled summary, per §4.2's planner output transform.
func formatPlannerText(text string) string {
	obj, ok := extractJSONObject(text)
	if !ok {
		return text
	}
	var parsed struct {
		NextAgent string `json:"next_agent"`
		Decision  string `json:"decision"`
		Reason    string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return text
	}
	var sb strings.Builder
	if parsed.NextAgent != "" {
		sb.WriteString(fmt.Sprintf("Next: %s\n", parsed.NextAgent))
	}
	if parsed.Decision != "" {
		sb.WriteString(fmt.Sprintf("Decision: %s\n", parsed.Decision))
	}
	if parsed.Reason != "" {
		sb.WriteString(fmt.Sprintf("Reason: %s\n", parsed.Reason))
	}
	if sb.Len() == 0 {
		return text
	}
	return sb.String()
}

// --- Engineer ---------------------------------------------------------------

// EngineerAgent implements the solution by writing files and running shell
// commands in the sandbox workspace.
type EngineerAgent struct {
	baseAgent
}

// NewEngineerAgent constructs an EngineerAgent.
func NewEngineerAgent(provider agent.LLMProvider, model string, logger sessions.LLMInteractionLogger, tools ToolCaller) *EngineerAgent {
	return &EngineerAgent{baseAgent: newBaseAgent(models.RoleEngineer, provider, model, logger, tools)}
}

func (e *EngineerAgent) Act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	text, err := e.stream(ctx, "act", view.SystemPrompt, composeUserMessage(view))
	if err != nil {
		return models.AgentRunResult{}, err
	}

	var writes, shellRuns []string

	for _, fb := range ParseFileBlocks(text) {
		if e.tools == nil {
			continue
		}
		params, _ := json.Marshal(map[string]any{
			"session_id": view.SessionID,
			"owner_id":   view.OwnerID,
			"agent":      string(models.RoleEngineer),
			"path":       fb.Path,
			"content":    fb.Body,
			"overwrite":  fb.Mode == FileBlockOverwrite,
			"append":     fb.Mode == FileBlockAppend,
		})
		result, callErr := e.tools.ExecuteSingle(ctx, "file_write", params)
		if callErr != nil {
			writes = append(writes, fmt.Sprintf("%s: error: %v", fb.Path, callErr))
			continue
		}
		writes = append(writes, fmt.Sprintf("%s: %s", fb.Path, result.Content))
	}

	for _, sb := range ParseShellBlocks(text) {
		if e.tools == nil {
			continue
		}
		params, _ := json.Marshal(map[string]any{
			"session_id": view.SessionID,
			"owner_id":   view.OwnerID,
			"agent":      string(models.RoleEngineer),
			"command":    sb.Command,
			"cwd":        sb.Cwd,
			"timeout":    sb.Timeout,
			"env":        sb.Env,
		})
		result, callErr := e.tools.ExecuteSingle(ctx, "sandbox_shell", params)
		if callErr != nil {
			shellRuns = append(shellRuns, fmt.Sprintf("%s: error: %v", sb.Command, callErr))
			continue
		}
		out := result.Content
		if len(out) > 400 {
			out = out[:400]
		}
		shellRuns = append(shellRuns, fmt.Sprintf("%s: %s", sb.Command, out))
	}

	final := text
	if len(writes) > 0 {
		final += "\n\n[file writes]\n" + strings.Join(writes, "\n")
	}
	if len(shellRuns) > 0 {
		final += "\n\n[sandbox shell]\n" + strings.Join(shellRuns, "\n")
	}

	return e.finalize(ctx, final), nil
}

// --- Product, Architect, Researcher -----------------------------------------

// docsAgent implements the shared pre-step research and `{{read_file:path}}`
// reference-injection behavior common to the product, architect, and
// researcher roles (§4.2).
type docsAgent struct {
	baseAgent
	doResearch bool
}

func (d *docsAgent) act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	userMessage := composeUserMessage(view)

	if d.doResearch && d.tools != nil {
		params, _ := json.Marshal(map[string]any{
			"session_id": view.SessionID,
			"owner_id":   view.OwnerID,
			"agent":      string(d.role),
			"query":      view.LastUserMessage,
			"max_results": 3,
		})
		if result, err := d.tools.ExecuteSingle(ctx, "web_search", params); err == nil && result != nil {
			userMessage += "\n\n## Research results\n" + result.Content
		}
	}

	text, err := d.stream(ctx, "act", view.SystemPrompt, userMessage)
	if err != nil {
		return models.AgentRunResult{}, err
	}

	final := text
	for _, ref := range extractReadFileDirectives(text) {
		if d.tools == nil {
			continue
		}
		params, _ := json.Marshal(map[string]any{
			"session_id": view.SessionID,
			"owner_id":   view.OwnerID,
			"agent":      string(d.role),
			"path":       ref,
		})
		if result, err := d.tools.ExecuteSingle(ctx, "file_read", params); err == nil && result != nil {
			final = fmt.Sprintf("## Reference: %s\n%s\n\n%s", ref, result.Content, final)
		}
	}

	var writes []string
	for _, fb := range ParseFileBlocks(text) {
		if d.tools == nil || strings.Contains(fb.Path, "..") {
			continue
		}
		path := fb.Path
		if !strings.HasPrefix(path, "docs/") {
			path = "docs/" + strings.TrimPrefix(path, "/")
		}
		params, _ := json.Marshal(map[string]any{
			"session_id": view.SessionID,
			"owner_id":   view.OwnerID,
			"agent":      string(d.role),
			"path":       path,
			"content":    fb.Body,
			"overwrite":  fb.Mode == FileBlockOverwrite,
			"append":     fb.Mode == FileBlockAppend,
		})
		if result, err := d.tools.ExecuteSingle(ctx, "file_write", params); err == nil {
			writes = append(writes, fmt.Sprintf("%s: %s", path, result.Content))
		}
	}
	if len(writes) > 0 {
		final += "\n\n[file writes]\n" + strings.Join(writes, "\n")
	}

	return d.finalize(ctx, final), nil
}

func extractReadFileDirectives(text string) []string {
	const marker = "{{read_file:"
	var out []string
	rest := text
	for {
		idx := strings.Index(rest, marker)
		if idx == -1 {
			break
		}
		afterMarker := rest[idx+len(marker):]
		end := strings.Index(afterMarker, "}}")
		if end == -1 {
			break
		}
		path := strings.TrimSpace(afterMarker[:end])
		if path != "" && !strings.Contains(path, "..") {
			out = append(out, path)
		}
		rest = afterMarker[end+2:]
	}
	return out
}

// ProductAgent clarifies requirements and writes PRDs under docs/.
type ProductAgent struct{ docsAgent }

// NewProductAgent constructs a ProductAgent.
func NewProductAgent(provider agent.LLMProvider, model string, logger sessions.LLMInteractionLogger, tools ToolCaller) *ProductAgent {
	return &ProductAgent{docsAgent{baseAgent: newBaseAgent(models.RoleProduct, provider, model, logger, tools), doResearch: true}}
}

func (a *ProductAgent) Act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	return a.act(ctx, view)
}

// ArchitectAgent designs the technical approach and writes design docs.
type ArchitectAgent struct{ docsAgent }

// NewArchitectAgent constructs an ArchitectAgent.
func NewArchitectAgent(provider agent.LLMProvider, model string, logger sessions.LLMInteractionLogger, tools ToolCaller) *ArchitectAgent {
	return &ArchitectAgent{docsAgent{baseAgent: newBaseAgent(models.RoleArchitect, provider, model, logger, tools), doResearch: false}}
}

func (a *ArchitectAgent) Act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	return a.act(ctx, view)
}

// ResearcherAgent investigates unknowns via web search.
type ResearcherAgent struct{ docsAgent }

// NewResearcherAgent constructs a ResearcherAgent.
func NewResearcherAgent(provider agent.LLMProvider, model string, logger sessions.LLMInteractionLogger, tools ToolCaller) *ResearcherAgent {
	return &ResearcherAgent{docsAgent{baseAgent: newBaseAgent(models.RoleResearcher, provider, model, logger, tools), doResearch: true}}
}

func (a *ResearcherAgent) Act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	return a.act(ctx, view)
}

// --- Analyst -----------------------------------------------------------------

// AnalystAgent reviews the team's work; it may optionally invoke a read-only
// memory search when the request references prior artifacts.
type AnalystAgent struct {
	baseAgent
}

// NewAnalystAgent constructs an AnalystAgent.
func NewAnalystAgent(provider agent.LLMProvider, model string, logger sessions.LLMInteractionLogger, tools ToolCaller) *AnalystAgent {
	return &AnalystAgent{baseAgent: newBaseAgent(models.RoleAnalyst, provider, model, logger, tools)}
}

func (a *AnalystAgent) Act(ctx context.Context, view RoleView) (models.AgentRunResult, error) {
	userMessage := composeUserMessage(view)
	if a.tools != nil && mentionsPriorArtifacts(view.LastUserMessage) {
		params, _ := json.Marshal(map[string]any{
			"session_id": view.SessionID,
			"owner_id":   view.OwnerID,
			"agent":      string(models.RoleAnalyst),
			"query":      view.LastUserMessage,
		})
		if result, err := a.tools.ExecuteSingle(ctx, "memory_search", params); err == nil && result != nil {
			userMessage += "\n\n## Related prior artifacts\n" + result.Content
		}
	}
	text, err := a.stream(ctx, "act", view.SystemPrompt, userMessage)
	if err != nil {
		return models.AgentRunResult{}, err
	}
	return a.finalize(ctx, text), nil
}

func mentionsPriorArtifacts(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"previous", "prior", "earlier", "before", "already"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

