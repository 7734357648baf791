// Package config loads Penguin's layered configuration: package defaults,
// project defaults, user config, project-local config, project-local
// overrides, and finally named environment variable overrides, grounded on
// hector's pkg/config/koanf_loader.go (Loader/LoaderOptions, fsnotify-driven
// watch) and goclaw's internal/config/config_load.go (flat named-env-var
// overrides, zero-value-means-unset agent resolution). See spec.md §6.1/§6.2.
package config

import "fmt"

// ModelSelection picks the default model and the adapter family used to
// resolve it, per spec.md §6.1 "model.default" / "model.provider".
type ModelSelection struct {
	Default          string `yaml:"default,omitempty"`
	Provider         string `yaml:"provider,omitempty"`
	ClientPreference string `yaml:"client_preference,omitempty"`
}

// ReasoningSettings mirrors model.ModelSpec's reasoning knobs so they can be
// set per model_configs.<id> entry (spec.md §6.1 "model_configs.<id>.reasoning").
type ReasoningSettings struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Effort    string `yaml:"effort,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
	// Exclude asks the provider to omit reasoning/thinking tokens from the
	// response body while still billing for them. Accepted here for
	// config-surface completeness; model.ModelSpec has no field for it yet,
	// so ModelSpecs() does not forward it.
	Exclude bool `yaml:"exclude,omitempty"`
}

// ModelConfigEntry is one named entry under model_configs, the capability
// descriptor model.NewModelSpec is eventually built from.
type ModelConfigEntry struct {
	Model                  string            `yaml:"model,omitempty"`
	Provider               string            `yaml:"provider,omitempty"`
	ClientPreference       string            `yaml:"client_preference,omitempty"`
	APIBase                string            `yaml:"api_base,omitempty"`
	MaxContextWindowTokens int               `yaml:"max_context_window_tokens,omitempty"`
	MaxOutputTokens        int               `yaml:"max_output_tokens,omitempty"`
	Temperature            float64           `yaml:"temperature,omitempty"`
	StreamingEnabled       bool              `yaml:"streaming_enabled,omitempty"`
	VisionEnabled          bool              `yaml:"vision_enabled,omitempty"`
	Reasoning              ReasoningSettings `yaml:"reasoning,omitempty"`
}

// AgentModelRef overrides an agent's model selection (spec.md §6.1
// "agents.<name>.model.{id,...}").
type AgentModelRef struct {
	ID        string `yaml:"id,omitempty"`
	MaxTokens int    `yaml:"max_tokens,omitempty"`
}

// AgentConfig is one persona definition under the agents table. Field names
// follow spec.md §6.1's agents.<name> table; ShareSessionWith/
// ShareContextWindowWith name the parent agent whose session or context
// window this agent joins (spec.md §9 Open Question #4).
type AgentConfig struct {
	Description            string        `yaml:"description,omitempty"`
	SystemPrompt            string        `yaml:"system_prompt,omitempty"`
	Model                   AgentModelRef `yaml:"model,omitempty"`
	DefaultTools            []string      `yaml:"default_tools,omitempty"`
	ShareSessionWith        string        `yaml:"share_session_with,omitempty"`
	ShareContextWindowWith  string        `yaml:"share_context_window_with,omitempty"`
	SharedCWMaxTokens       int           `yaml:"shared_cw_max_tokens,omitempty"`
	ModelMaxTokens          int           `yaml:"model_max_tokens,omitempty"`
	Activate                bool          `yaml:"activate,omitempty"`
}

// ContextConfig carries the context.scratchpad_dir setting, the folder for
// user-authored context files (spec.md §6.1). It is loaded into the config
// tree only; no package in this module reads the folder.
type ContextConfig struct {
	ScratchpadDir string `yaml:"scratchpad_dir,omitempty"`
}

// ProjectConfig lists extra directories a project grants read/write access
// to beyond the workspace root (spec.md §6.1 "project.additional_directories").
type ProjectConfig struct {
	AdditionalDirectories []string `yaml:"additional_directories,omitempty"`
}

// WorkspaceConfig locates the working tree Penguin operates on. WriteRoot and
// CWDOverride are populated from the WRITE_ROOT/CWD env vars rather than a
// config file (spec.md §6.1 env override table).
type WorkspaceConfig struct {
	Path        string `yaml:"path,omitempty"`
	CreateDirs  bool   `yaml:"create_dirs,omitempty"`
	WriteRoot   string `yaml:"-"`
	CWDOverride string `yaml:"-"`
}

// DiagnosticsConfig controls the rotating diagnostics log described in
// spec.md §6.2 (logs/diagnostics.log, 5MB x 3).
type DiagnosticsConfig struct {
	Enabled          bool   `yaml:"enabled,omitempty"`
	LogToFile        bool   `yaml:"log_to_file,omitempty"`
	LogPath          string `yaml:"log_path,omitempty"`
	MaxContextTokens int    `yaml:"max_context_tokens,omitempty"`
}

// PerformanceConfig holds startup-path tuning knobs. NoSetup is populated
// from NO_SETUP=1 rather than a config file.
type PerformanceConfig struct {
	FastStartup bool `yaml:"fast_startup,omitempty"`
	NoSetup     bool `yaml:"-"`
}

// OutputConfig configures how the CLI host renders responses.
type OutputConfig struct {
	PromptStyle     string `yaml:"prompt_style,omitempty"`
	ShowToolResults bool   `yaml:"show_tool_results,omitempty"`
}

// LoggerConfig configures structured logging, mirroring
// hector/pkg/config/logger.go's level/file/format shape one-for-one.
//
// Priority order (highest to lowest):
//  1. Environment variables (LOG_LEVEL, LOG_FILE, LOG_FORMAT)
//  2. Config file (logger section)
//  3. Defaults (info level, simple format, stderr)
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty"`
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// SetDefaults fills in LoggerConfig fields left empty by every layer.
func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

// Validate rejects an unrecognized log level.
func (c *LoggerConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Level)
	}
}

// Config is the fully merged, validated configuration tree. Its yaml tags
// fix the key names every layer (defaults through env overrides) writes to.
type Config struct {
	Model        ModelSelection              `yaml:"model,omitempty"`
	ModelConfigs map[string]ModelConfigEntry `yaml:"model_configs,omitempty"`
	Agents       map[string]AgentConfig      `yaml:"agents,omitempty"`
	Context      ContextConfig               `yaml:"context,omitempty"`
	Project      ProjectConfig               `yaml:"project,omitempty"`
	Workspace    WorkspaceConfig             `yaml:"workspace,omitempty"`
	Diagnostics  DiagnosticsConfig           `yaml:"diagnostics,omitempty"`
	Performance  PerformanceConfig           `yaml:"performance,omitempty"`
	Output       OutputConfig                `yaml:"output,omitempty"`
	Logger       LoggerConfig                `yaml:"logger,omitempty"`
}

// defaultConfigYAML seeds the lowest-precedence layer. Every other layer
// (project defaults, user config, project-local config, project-local
// overrides, env vars) is loaded on top of this one.
const defaultConfigYAML = `
model:
  default: default
model_configs:
  default:
    max_context_window_tokens: 128000
    max_output_tokens: 4096
    temperature: 0.7
    streaming_enabled: true
context:
  scratchpad_dir: .penguin/context
workspace:
  create_dirs: true
diagnostics:
  enabled: true
  log_to_file: true
  log_path: logs/diagnostics.log
  max_context_tokens: 2000
performance:
  fast_startup: false
output:
  prompt_style: default
  show_tool_results: true
logger:
  level: info
  format: simple
`

// SetDefaults fills in any field every layer left at its zero value.
func (c *Config) SetDefaults() {
	if c.Model.Default == "" {
		c.Model.Default = "default"
	}
	if c.ModelConfigs == nil {
		c.ModelConfigs = map[string]ModelConfigEntry{}
	}
	if c.Agents == nil {
		c.Agents = map[string]AgentConfig{}
	}
	if c.Diagnostics.LogPath == "" {
		c.Diagnostics.LogPath = "logs/diagnostics.log"
	}
	c.Logger.SetDefaults()
}

// Validate checks structural invariants that SetDefaults can't repair:
// every model_configs reference in the agents table must resolve, and the
// share_session_with/share_context_window_with graph must be acyclic.
func (c *Config) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if _, ok := c.ModelConfigs[c.Model.Default]; c.Model.Default != "" && !ok {
		return fmt.Errorf("model.default %q has no matching model_configs entry", c.Model.Default)
	}
	for name, agent := range c.Agents {
		if agent.Model.ID != "" {
			if _, ok := c.ModelConfigs[agent.Model.ID]; !ok {
				return fmt.Errorf("agents.%s.model.id %q has no matching model_configs entry", name, agent.Model.ID)
			}
		}
		if agent.ShareSessionWith != "" {
			if _, ok := c.Agents[agent.ShareSessionWith]; !ok {
				return fmt.Errorf("agents.%s.share_session_with references unknown agent %q", name, agent.ShareSessionWith)
			}
		}
		if agent.ShareContextWindowWith != "" {
			if _, ok := c.Agents[agent.ShareContextWindowWith]; !ok {
				return fmt.Errorf("agents.%s.share_context_window_with references unknown agent %q", name, agent.ShareContextWindowWith)
			}
		}
	}
	if cyc := DetectShareCycle(c.Agents); cyc != nil {
		return fmt.Errorf("cyclic agent sharing chain: %v", cyc)
	}
	return nil
}
