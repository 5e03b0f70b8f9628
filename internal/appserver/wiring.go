// Package appserver assembles the process-wide dependencies (sessions,
// sandboxing, tools, auth, the multi-agent orchestrator) and exposes them
// over HTTP and WebSocket, the external interface layer the rest of the
// backend has none of on its own.
package appserver

import (
	"fmt"
	"log/slog"

	"github.com/haasonsaas/codeteam/internal/agent"
	"github.com/haasonsaas/codeteam/internal/agent/providers"
	"github.com/haasonsaas/codeteam/internal/auth"
	"github.com/haasonsaas/codeteam/internal/config"
	"github.com/haasonsaas/codeteam/internal/jobs"
	"github.com/haasonsaas/codeteam/internal/multiagent"
	"github.com/haasonsaas/codeteam/internal/sandbox"
	"github.com/haasonsaas/codeteam/internal/sessions"
	"github.com/haasonsaas/codeteam/internal/toolexec"
	toolsjobs "github.com/haasonsaas/codeteam/internal/tools/jobs"
	"github.com/haasonsaas/codeteam/internal/tools/memorysearch"
	"github.com/haasonsaas/codeteam/internal/tools/policy"
	"github.com/haasonsaas/codeteam/internal/tools/websearch"
	"github.com/haasonsaas/codeteam/pkg/models"
)

// App bundles every wired dependency the HTTP/WS layer drives.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Auth          *auth.Service
	Sessions      sessions.Store
	State         *sessions.StateStore
	Sandbox       *sandbox.Manager
	Files         *sandbox.FileService
	Commands      *sandbox.SandboxCommandService
	Jobs          jobs.Store
	Tools         *agent.ToolRegistry
	ToolExecutor  *toolexec.Executor
	PolicyDefault policy.Policy
	Orchestrator  *multiagent.Orchestrator
	Hub           *Hub
}

// Build wires the full application graph from cfg. provider is the LLM
// provider every role agent shares; callers construct it from cfg.LLM
// before calling Build so tests can substitute a fake.
func Build(cfg *config.Config, provider agent.LLMProvider) (*App, error) {
	logger := slog.Default()

	sessionStore, err := sessions.NewFileStore(cfg.Store.BasePath)
	if err != nil {
		return nil, fmt.Errorf("build session store: %w", err)
	}
	stateStore := sessions.NewStateStore(cfg.Store.BasePath)

	sandboxCfg := sandbox.Config{
		Image:              cfg.Sandbox.Image,
		BaseDir:            cfg.Sandbox.BaseDir,
		CPULimit:           cfg.Sandbox.CPULimit,
		MemoryLimit:        cfg.Sandbox.MemoryLimit,
		NetworkMode:        cfg.Sandbox.NetworkMode,
		HostPortRangeStart: cfg.Sandbox.HostPortStart,
		HostPortRangeEnd:   cfg.Sandbox.HostPortEnd,
		IdleTimeout:        cfg.Sandbox.IdleTimeout,
		GCInterval:         cfg.Sandbox.GCInterval,
		PreviewHostURL:     cfg.Sandbox.PreviewHostURL,
	}.WithDefaults()

	hub := NewHub()
	sandboxManager, err := sandbox.NewManager(sandboxCfg, sandbox.NewDockerCLIRuntime(), hub.FileChange)
	if err != nil {
		return nil, fmt.Errorf("build sandbox manager: %w", err)
	}
	sandboxManager.StartIdleReaper()

	fileService := sandbox.NewFileService(sandboxManager, nil)
	commandService := sandbox.NewSandboxCommandService(sandboxManager)

	jobStore := jobs.NewMemoryStore()

	registry := agent.NewToolRegistry()
	registry.Register(sandbox.NewFileWriteTool(fileService))
	registry.Register(sandbox.NewFileReadTool(fileService))
	registry.Register(sandbox.NewSandboxShellTool(commandService))
	registry.Register(websearch.NewWebSearchTool(&websearch.Config{}))
	registry.Register(memorysearch.NewMemorySearchTool(&memorysearch.Config{}))
	registry.Register(toolsjobs.NewStatusTool(jobStore))
	registry.Register(toolsjobs.NewCancelTool(jobStore))
	registry.Register(toolsjobs.NewListTool(jobStore))

	resolver := policy.NewResolver()
	resolver.RegisterAlias("write", "file_write")
	resolver.RegisterAlias("read", "file_read")
	resolver.RegisterAlias("sandbox", "sandbox_shell")
	resolver.RegisterAlias("shell", "sandbox_shell")
	defaultPolicy := policy.Policy{Profile: policy.ProfileCoding}

	innerExecutor := agent.NewToolExecutor(registry, agent.DefaultToolExecConfig())
	executor := toolexec.New(innerExecutor, registry, resolver, defaultPolicy)
	executor.AddHook(toolexec.JobsHook(jobStore))

	builder := multiagent.NewContextBuilder(sandboxManager.WorkspaceRoot)
	llmLogger := sessions.NewFileLLMLogger(cfg.Store.BasePath)

	model := ""
	if providerCfg, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; ok {
		model = providerCfg.DefaultModel
	}

	planner := multiagent.NewPlannerAgent(provider, model, llmLogger)
	agents := map[models.Role]multiagent.RoleAgent{
		models.RoleProduct:    multiagent.NewProductAgent(provider, model, llmLogger, executor),
		models.RoleArchitect:  multiagent.NewArchitectAgent(provider, model, llmLogger, executor),
		models.RoleEngineer:   multiagent.NewEngineerAgent(provider, model, llmLogger, executor),
		models.RoleResearcher: multiagent.NewResearcherAgent(provider, model, llmLogger, executor),
		models.RoleAnalyst:    multiagent.NewAnalystAgent(provider, model, llmLogger, executor),
	}
	orchestrator := multiagent.NewOrchestrator(planner, agents, builder)

	users := auth.NewStaticUserStore()
	authService := auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
		APIKeys:     convertAPIKeys(cfg.Auth.APIKeys),
		Users:       users,
	})

	return &App{
		Config:        cfg,
		Logger:        logger,
		Auth:          authService,
		Sessions:      sessionStore,
		State:         stateStore,
		Sandbox:       sandboxManager,
		Files:         fileService,
		Commands:      commandService,
		Jobs:          jobStore,
		Tools:         registry,
		ToolExecutor:  executor,
		PolicyDefault: defaultPolicy,
		Orchestrator:  orchestrator,
		Hub:           hub,
	}, nil
}

func convertAPIKeys(keys []config.APIKeyConfig) []auth.APIKeyConfig {
	out := make([]auth.APIKeyConfig, 0, len(keys))
	for _, k := range keys {
		out = append(out, auth.APIKeyConfig{Key: k.Key, UserID: k.UserID, Email: k.Email, Name: k.Name})
	}
	return out
}

// BuildDefaultProvider selects the configured LLM provider for cfg.
func BuildDefaultProvider(cfg *config.Config) (agent.LLMProvider, error) {
	providerCfg, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]
	if !ok {
		return nil, fmt.Errorf("no LLM provider configured for %q", cfg.LLM.DefaultProvider)
	}
	switch cfg.LLM.DefaultProvider {
	case "anthropic":
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  providerCfg.APIKey,
			BaseURL: providerCfg.BaseURL,
		})
	default:
		return providers.NewOpenAIProvider(providerCfg.APIKey), nil
	}
}

// Close releases background resources (the idle reaper).
func (a *App) Close() {
	if a.Sandbox != nil {
		a.Sandbox.StopIdleReaper()
	}
}
