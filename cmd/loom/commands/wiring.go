package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/loomwork/loom/internal/agent"
	"github.com/loomwork/loom/internal/agentloop"
	"github.com/loomwork/loom/internal/config"
	"github.com/loomwork/loom/internal/hooks"
	"github.com/loomwork/loom/internal/mcp"
	"github.com/loomwork/loom/internal/permission"
	"github.com/loomwork/loom/internal/provider"
	"github.com/loomwork/loom/internal/runtime"
	"github.com/loomwork/loom/internal/storage"
	"github.com/loomwork/loom/internal/tool"
	"github.com/loomwork/loom/pkg/types"
)

// app bundles the wired-up runtime and the registries feeding it, so a
// command can spawn agents without re-threading every dependency through
// its own flags.
type app struct {
	cfg     *types.Config
	rt      *runtime.Runtime
	agents  *agent.Registry
	tools   *tool.Registry
	mcp     *mcp.Client
	drivers map[string]runtime.AgentFunc
	workDir string
}

// buildApp loads configuration for workDir and wires the provider,
// tool, agent, and runtime layers together. The caller owns the
// returned app's mcp client and must Close it.
func buildApp(ctx context.Context, workDir string) (*app, error) {
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, fmt.Errorf("prepare data directories: %w", err)
	}

	providers := provider.NewRegistry(cfg)
	if err := registerProviders(ctx, providers, cfg); err != nil {
		return nil, err
	}

	store := storage.New(paths.StoragePath())
	tools := tool.DefaultRegistry(workDir, store)

	agents := agent.NewRegistry()
	agents.LoadFromConfig(convertAgentConfigs(cfg.Agent))
	tools.RegisterTaskTool(agents)

	mcpClient := mcp.NewClient()
	if err := connectMCPServers(ctx, mcpClient, cfg); err != nil {
		log.Warn().Err(err).Msg("not all configured MCP servers connected")
	}
	if mcpClient.ServerCount() > 0 {
		if err := tools.AddProvider(ctx, mcp.NewToolProvider("mcp", mcpClient)); err != nil {
			log.Warn().Err(err).Msg("failed to register MCP tool provider")
		}
	}

	sessionStore := storage.NewSessionStore(paths.StoragePath())
	rt := runtime.New(sessionStore)

	hookRegistry := hooks.NewRegistry()

	drivers := make(map[string]runtime.AgentFunc, agents.Count())
	for _, a := range agents.List() {
		a := a
		driverCfg := agentloop.Config{
			AgentType:    a.Name,
			SystemPrompt: agentSystemPrompt(a),
			Providers:    providers,
			ProviderID:   providerID(cfg, a),
			ModelID:      modelID(cfg, a),
			Tools:        tools,
			Hooks:        hookRegistry,
			Temperature:  a.Temperature,
			TopP:         a.TopP,
			WorkDir:      workDir,
		}
		fn := agentloop.New(driverCfg)
		drivers[a.Name] = fn
		rt.RegisterAgentDriver(a.Name, fn)
	}

	return &app{
		cfg:     cfg,
		rt:      rt,
		agents:  agents,
		tools:   tools,
		mcp:     mcpClient,
		drivers: drivers,
		workDir: workDir,
	}, nil
}

func (a *app) Close() {
	if a.mcp != nil {
		_ = a.mcp.Close()
	}
}

// registerProviders registers the Anthropic provider, the only one it
// wires. It takes the key, base URL and model from the "anthropic" config
// entry, with the ANTHROPIC_API_KEY environment variable as the key
// fallback. Nothing is registered when that entry is disabled or when no
// key is available from either source; other provider entries are ignored.
func registerProviders(ctx context.Context, providers *provider.Registry, cfg *types.Config) error {
	anthropicCfg := &provider.AnthropicConfig{ID: "anthropic"}
	if pc, ok := cfg.Provider["anthropic"]; ok {
		if pc.Disable {
			return nil
		}
		anthropicCfg.APIKey = pc.APIKey
		anthropicCfg.BaseURL = pc.BaseURL
		anthropicCfg.Model = pc.Model
	}
	if anthropicCfg.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		log.Warn().Msg("no Anthropic API key configured; agents requiring it will fail to start")
		return nil
	}

	p, err := provider.NewAnthropicProvider(ctx, anthropicCfg)
	if err != nil {
		return fmt.Errorf("init anthropic provider: %w", err)
	}
	providers.Register(p)
	return nil
}

// connectMCPServers dials every enabled server in cfg.MCP, collecting
// (but not failing on) individual connection errors so one misconfigured
// server doesn't block the rest.
func connectMCPServers(ctx context.Context, client *mcp.Client, cfg *types.Config) error {
	var lastErr error
	for name, mc := range cfg.MCP {
		if mc.Enabled != nil && !*mc.Enabled {
			continue
		}
		serverCfg := &mcp.Config{
			Enabled:     true,
			Type:        mcp.TransportType(mc.Type),
			URL:         mc.URL,
			Headers:     mc.Headers,
			Command:     mc.Command,
			Environment: mc.Environment,
			Timeout:     mc.Timeout,
		}
		if err := client.AddServer(ctx, name, serverCfg); err != nil {
			lastErr = err
			log.Warn().Err(err).Str("server", name).Msg("failed to connect MCP server")
		}
	}
	return lastErr
}

func agentSystemPrompt(a *agent.Agent) string {
	if a.Prompt != "" {
		return a.Prompt
	}
	return fmt.Sprintf("You are %s, an agent in an autonomous coding runtime. %s", a.Name, a.Description)
}

func providerID(cfg *types.Config, a *agent.Agent) string {
	if a.Model != nil && a.Model.ProviderID != "" {
		return a.Model.ProviderID
	}
	return "anthropic"
}

// convertAgentConfigs adapts the JSON-facing types.AgentConfig map (as
// loaded from loom.json) into the agent.AgentConfig shape the registry's
// LoadFromConfig expects. The two exist because pkg/types mirrors the
// on-disk config schema exactly, while internal/agent additionally
// distinguishes permission actions by type instead of bare strings.
func convertAgentConfigs(src map[string]types.AgentConfig) map[string]agent.AgentConfig {
	out := make(map[string]agent.AgentConfig, len(src))
	for name, tc := range src {
		ac := agent.AgentConfig{
			Description: tc.Description,
			Mode:        agent.Mode(tc.Mode),
			Prompt:      tc.Prompt,
			Color:       tc.Color,
			Tools:       tc.Tools,
		}
		if tc.Model != "" {
			ac.Model = &agent.ModelRef{ModelID: tc.Model}
		}
		if tc.Temperature != nil {
			ac.Temperature = *tc.Temperature
		}
		if tc.TopP != nil {
			ac.TopP = *tc.TopP
		}
		if tc.Permission != nil {
			ac.Permission = &agent.AgentPermissionConfig{
				Edit:        permission.PermissionAction(tc.Permission.Edit),
				WebFetch:    permission.PermissionAction(tc.Permission.WebFetch),
				ExternalDir: permission.PermissionAction(tc.Permission.ExternalDir),
				DoomLoop:    permission.PermissionAction(tc.Permission.DoomLoop),
			}
			if bashMap, ok := tc.Permission.Bash.(map[string]string); ok {
				ac.Permission.Bash = make(map[string]permission.PermissionAction, len(bashMap))
				for pattern, action := range bashMap {
					ac.Permission.Bash[pattern] = permission.PermissionAction(action)
				}
			} else if bashAction, ok := tc.Permission.Bash.(string); ok && bashAction != "" {
				ac.Permission.Bash = map[string]permission.PermissionAction{"*": permission.PermissionAction(bashAction)}
			}
		}
		out[name] = ac
	}
	return out
}

func modelID(cfg *types.Config, a *agent.Agent) string {
	if a.Model != nil && a.Model.ModelID != "" {
		return a.Model.ModelID
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return ""
}
