package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/penguin-run/penguin/pkg/checkpoint"
	"github.com/penguin-run/penguin/pkg/config"
	"github.com/penguin-run/penguin/pkg/core"
	"github.com/penguin-run/penguin/pkg/eventbus"
	"github.com/penguin-run/penguin/pkg/llms"
	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/session"
	"github.com/penguin-run/penguin/pkg/tool"
)

// app bundles the stack a subcommand drives: the resolved configuration,
// the facade every subcommand calls through, and a cleanup hook (stops the
// config watcher, if one was started).
type app struct {
	cfg     *config.Config
	core    *core.Core
	cleanup func()
}

// bootstrap loads configuration from the standard layer paths rooted at
// workspaceDir (or an explicit --config file, which replaces the
// project-local layer), builds the gateway/session/tool plumbing, and
// registers every configured agent, grounded on hector/cmd/hector/
// config_loader.go's loadConfigFromArgsOrFile plus main.go's wiring of
// config into runtime.
func bootstrap(configPath, workspaceDir string) (*app, error) {
	if workspaceDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving workspace directory: %w", err)
		}
		workspaceDir = wd
	}

	opts := config.StandardPaths("penguin", workspaceDir)
	if configPath != "" {
		opts.ProjectConfigPath = configPath
	}
	loader := config.NewLoader(opts)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Workspace.CWDOverride != "" {
		workspaceDir = config.ExpandHome(cfg.Workspace.CWDOverride)
	} else if cfg.Workspace.Path != "" {
		workspaceDir = config.ExpandHome(cfg.Workspace.Path)
	}

	bus := eventbus.New()

	sessionDir := filepath.Join(workspaceDir, "conversations")
	store, err := session.NewFileStore(sessionDir)
	if err != nil {
		return nil, err
	}

	writeMode := tool.WriteRootProject
	if cfg.Workspace.WriteRoot == string(tool.WriteRootWorkspace) {
		writeMode = tool.WriteRootWorkspace
	}
	dispatcher := tool.NewDispatcher(tool.Roots{
		ProjectRoot:   workspaceDir,
		WorkspaceRoot: workspaceDir,
		Additional:    cfg.Project.AdditionalDirectories,
		WriteMode:     writeMode,
	}, bus)

	gateways, err := buildGateways(cfg)
	if err != nil {
		return nil, err
	}

	c := core.New(core.Options{
		Bus:            bus,
		Store:          store,
		Dispatcher:     dispatcher,
		Gateways:       gateways,
		ModelSpecs:     cfg.ModelSpecs(),
		DefaultModelID: cfg.Model.Default,
		Retention:      checkpoint.DefaultRetention(),
	})

	plans, err := cfg.RegisterPlans()
	if err != nil {
		return nil, fmt.Errorf("resolving agents table: %w", err)
	}
	for _, plan := range plans {
		if _, err := c.RegisterAgent(plan); err != nil {
			return nil, fmt.Errorf("registering agent %q: %w", plan.ID, err)
		}
	}

	return &app{cfg: cfg, core: c, cleanup: loader.Stop}, nil
}

// buildGateways constructs one Gateway per distinct provider/client
// preference referenced by cfg.ModelConfigs, grounded on hector's
// pkg/llms/registry.go CreateLLMFromConfig provider-name dispatch.
func buildGateways(cfg *config.Config) (*llms.Registry, error) {
	reg := llms.NewRegistry()
	seen := map[string]bool{}

	for _, spec := range cfg.ModelSpecs() {
		key := spec.Provider
		switch spec.ClientPreference {
		case model.ClientOpenRouter:
			key = "openrouter"
		case model.ClientLiteLLM:
			key = "litellm"
		}
		if key == "" || seen[key] {
			continue
		}
		gw, err := newGateway(key, spec.APIBase)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterGateway(key, gw); err != nil {
			return nil, err
		}
		seen[key] = true
	}
	return reg, nil
}

func newGateway(key, apiBase string) (llms.Gateway, error) {
	switch key {
	case "anthropic":
		return llms.NewAnthropic(apiKeyEnvVar("anthropic")), nil
	case "gemini":
		return llms.NewGemini(apiKeyEnvVar("gemini")), nil
	case "openai":
		return llms.NewNativeOpenAI(apiKeyEnvVar("openai")), nil
	case "ollama":
		base := apiBase
		if base == "" {
			base = "http://localhost:11434"
		}
		return llms.NewNativeOllama(base), nil
	case "openrouter":
		return llms.NewOpenRouter(apiKeyEnvVar("openrouter")), nil
	case "litellm":
		return llms.NewLiteLLM(apiBase, apiKeyEnvVar("litellm")), nil
	default:
		return nil, fmt.Errorf("no gateway adapter for provider %q", key)
	}
}

// apiKeyEnvVar resolves a provider name to its conventional API key
// environment variable, grounded on hector's pkg/config/env.go
// GetProviderAPIKey.
func apiKeyEnvVar(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	case "litellm":
		return os.Getenv("LITELLM_API_KEY")
	default:
		return ""
	}
}
