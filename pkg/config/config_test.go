package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsEmptyFields(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	assert.Equal(t, "default", c.Model.Default)
	assert.Equal(t, "info", c.Logger.Level)
	assert.Equal(t, "simple", c.Logger.Format)
	assert.NotNil(t, c.ModelConfigs)
	assert.NotNil(t, c.Agents)
}

func TestValidateRejectsUnknownModelReference(t *testing.T) {
	c := &Config{
		Model:        ModelSelection{Default: "default"},
		ModelConfigs: map[string]ModelConfigEntry{"default": {}},
		Agents: map[string]AgentConfig{
			"reviewer": {Model: AgentModelRef{ID: "ghost"}},
		},
	}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidateRejectsUnknownShareTarget(t *testing.T) {
	c := &Config{
		Agents: map[string]AgentConfig{
			"child": {ShareSessionWith: "ghost-parent"},
		},
	}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost-parent")
}

func TestDetectShareCycleFindsDirectCycle(t *testing.T) {
	agents := map[string]AgentConfig{
		"a": {ShareSessionWith: "b"},
		"b": {ShareSessionWith: "a"},
	}
	cyc := DetectShareCycle(agents)
	require.NotNil(t, cyc)
	assert.Contains(t, cyc, "a")
	assert.Contains(t, cyc, "b")
}

func TestDetectShareCycleAcceptsChain(t *testing.T) {
	agents := map[string]AgentConfig{
		"root":  {},
		"mid":   {ShareSessionWith: "root"},
		"child": {ShareSessionWith: "mid"},
	}
	assert.Nil(t, DetectShareCycle(agents))
}

func TestDetectShareCycleChecksBothRelations(t *testing.T) {
	agents := map[string]AgentConfig{
		"a": {ShareContextWindowWith: "b"},
		"b": {ShareContextWindowWith: "a"},
	}
	assert.NotNil(t, DetectShareCycle(agents))
}

func TestExpandEnvVarsSupportsDefaultBracedAndSimpleForms(t *testing.T) {
	t.Setenv("PENGUIN_TEST_VAR", "resolved")

	assert.Equal(t, "resolved", expandEnvVars("${PENGUIN_TEST_VAR}"))
	assert.Equal(t, "resolved", expandEnvVars("$PENGUIN_TEST_VAR"))
	assert.Equal(t, "fallback", expandEnvVars("${PENGUIN_ABSENT_VAR:-fallback}"))
	assert.Equal(t, "resolved", expandEnvVars("${PENGUIN_TEST_VAR:-fallback}"))
}

func TestApplyNamedEnvOverridesAppliesModelAndWorkspaceVars(t *testing.T) {
	t.Setenv("DEFAULT_MODEL", "big")
	t.Setenv("MAX_OUTPUT_TOKENS", "2048")
	t.Setenv("TEMPERATURE", "0.2")
	t.Setenv("WORKSPACE", "/tmp/ws")
	t.Setenv("NO_SETUP", "1")

	c := &Config{ModelConfigs: map[string]ModelConfigEntry{}}
	applyNamedEnvOverrides(c)

	assert.Equal(t, "big", c.Model.Default)
	assert.Equal(t, 2048, c.ModelConfigs["big"].MaxOutputTokens)
	assert.Equal(t, 0.2, c.ModelConfigs["big"].Temperature)
	assert.Equal(t, "/tmp/ws", c.Workspace.Path)
	assert.True(t, c.Performance.NoSetup)
}

func TestLoaderMergesLayersInPrecedenceOrder(t *testing.T) {
	dir := t.TempDir()

	projectDefaults := filepath.Join(dir, "defaults.yaml")
	require.NoError(t, os.WriteFile(projectDefaults, []byte("model:\n  default: from-project-defaults\noutput:\n  prompt_style: plain\n"), 0o644))

	userConfig := filepath.Join(dir, "user.yaml")
	require.NoError(t, os.WriteFile(userConfig, []byte("model:\n  default: from-user\n"), 0o644))

	projectConfig := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(projectConfig, []byte("model:\n  default: from-project\nmodel_configs:\n  from-project:\n    max_output_tokens: 999\n"), 0o644))

	loader := NewLoader(LoaderOptions{
		ProjectDefaultsPath: projectDefaults,
		UserConfigPath:      userConfig,
		ProjectConfigPath:   projectConfig,
	})

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "from-project", cfg.Model.Default)
	assert.Equal(t, "plain", cfg.Output.PromptStyle)
	assert.Equal(t, 999, cfg.ModelConfigs["from-project"].MaxOutputTokens)
}

func TestLoaderSkipsMissingLayerFiles(t *testing.T) {
	dir := t.TempDir()
	loader := NewLoader(LoaderOptions{
		ProjectConfigPath:   filepath.Join(dir, "does-not-exist.yaml"),
		ProjectOverridesPath: filepath.Join(dir, "also-missing.yaml"),
	})

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Model.Default)
}

func TestLoaderLocalOverridesWinOverProjectConfig(t *testing.T) {
	dir := t.TempDir()

	projectConfig := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(projectConfig, []byte("model:\n  default: shared\noutput:\n  show_tool_results: false\n"), 0o644))

	overrides := filepath.Join(dir, "settings.local.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte("output:\n  show_tool_results: true\n"), 0o644))

	loader := NewLoader(LoaderOptions{
		ProjectConfigPath:    projectConfig,
		ProjectOverridesPath: overrides,
	})

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "shared", cfg.Model.Default)
	assert.True(t, cfg.Output.ShowToolResults)
}

func TestModelSpecsFallsBackToTopLevelProvider(t *testing.T) {
	c := &Config{
		Model: ModelSelection{Provider: "anthropic", ClientPreference: "native"},
		ModelConfigs: map[string]ModelConfigEntry{
			"default": {MaxContextWindowTokens: 100000, MaxOutputTokens: 4096},
			"fast":    {Provider: "openai", MaxContextWindowTokens: 16000},
		},
	}
	specs := c.ModelSpecs()

	require.Contains(t, specs, "default")
	assert.Equal(t, "anthropic", specs["default"].Provider)
	require.Contains(t, specs, "fast")
	assert.Equal(t, "openai", specs["fast"].Provider)
}

func TestRegisterPlansOrdersParentsBeforeChildren(t *testing.T) {
	c := &Config{
		Agents: map[string]AgentConfig{
			"child": {ShareSessionWith: "root", Activate: false},
			"root":  {Activate: true},
		},
	}
	plans, err := c.RegisterPlans()
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "root", plans[0].ID)
	assert.Equal(t, "child", plans[1].ID)
	assert.Equal(t, "root", plans[1].ParentID)
	assert.True(t, plans[1].ShareSession)
}

func TestRegisterPlansRejectsDivergentShareTargets(t *testing.T) {
	c := &Config{
		Agents: map[string]AgentConfig{
			"root":  {},
			"other": {},
			"child": {ShareSessionWith: "root", ShareContextWindowWith: "other"},
		},
	}
	_, err := c.RegisterPlans()
	assert.Error(t, err)
}
