package config

import (
	"fmt"

	"github.com/penguin-run/penguin/pkg/core"
	"github.com/penguin-run/penguin/pkg/model"
)

// ModelSpecs builds the model.ModelSpec table cmd/penguin feeds into
// core.Options.ModelSpecs, one entry per model_configs.<id>, grounded on
// hector's pkg/config/llm.go -> pkg/llms/registry.go CreateLLMFromConfig
// translation step.
func (c *Config) ModelSpecs() map[string]*model.ModelSpec {
	specs := make(map[string]*model.ModelSpec, len(c.ModelConfigs))
	for id, entry := range c.ModelConfigs {
		provider := entry.Provider
		if provider == "" {
			provider = c.Model.Provider
		}
		clientPref := entry.ClientPreference
		if clientPref == "" {
			clientPref = c.Model.ClientPreference
		}
		modelID := entry.Model
		if modelID == "" {
			modelID = id
		}

		specs[id] = model.NewModelSpec(model.Options{
			ModelID:                modelID,
			Provider:               provider,
			ClientPreference:       model.ClientPreference(clientPref),
			MaxContextWindowTokens: entry.MaxContextWindowTokens,
			MaxOutputTokens:        entry.MaxOutputTokens,
			SupportsStreaming:      entry.StreamingEnabled,
			SupportsVision:         entry.VisionEnabled,
			ReasoningStyle:         reasoningStyleFor(entry.Reasoning),
			ReasoningEffort:        model.ReasoningEffort(entry.Reasoning.Effort),
			ReasoningMaxTokens:     entry.Reasoning.MaxTokens,
			APIBase:                entry.APIBase,
		})
	}
	return specs
}

func reasoningStyleFor(r ReasoningSettings) model.ReasoningStyle {
	if !r.Enabled {
		return ""
	}
	if r.MaxTokens > 0 {
		return model.ReasoningMaxTokens
	}
	return model.ReasoningEffort
}

// RegisterPlans resolves the agents table into core.RegisterOptions, ordered
// so every parent (named by share_session_with or share_context_window_with)
// is registered before its dependents. A parent chain that cannot be
// resolved (a cycle, or a parent missing from the table) is returned as an
// error.
func (c *Config) RegisterPlans() ([]core.RegisterOptions, error) {
	remaining := make(map[string]AgentConfig, len(c.Agents))
	for name, agent := range c.Agents {
		remaining[name] = agent
	}

	var ordered []string
	placed := map[string]bool{}
	for len(remaining) > 0 {
		progressed := false
		for name, agent := range remaining {
			parent := parentOf(agent)
			if parent == "" || placed[parent] {
				ordered = append(ordered, name)
				placed[name] = true
				delete(remaining, name)
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("agents table has an unresolvable parent chain among %v", mapKeys(remaining))
		}
	}

	plans := make([]core.RegisterOptions, 0, len(ordered))
	for _, name := range ordered {
		agent := c.Agents[name]
		parent := parentOf(agent)

		if agent.ShareSessionWith != "" && agent.ShareContextWindowWith != "" &&
			agent.ShareSessionWith != agent.ShareContextWindowWith {
			return nil, fmt.Errorf("agents.%s: share_session_with and share_context_window_with must name the same parent", name)
		}

		plans = append(plans, core.RegisterOptions{
			ID: name,
			Persona: core.Persona{
				SystemPrompt:          agent.SystemPrompt,
				DefaultToolsWhitelist: agent.DefaultTools,
				ModelOverride:         agent.Model.ID,
			},
			ModelID:            agent.Model.ID,
			DefaultTools:       agent.DefaultTools,
			Activate:           agent.Activate,
			ParentID:           parent,
			ShareSession:       agent.ShareSessionWith != "",
			ShareContextWindow: agent.ShareContextWindowWith != "",
		})
	}
	return plans, nil
}

func parentOf(agent AgentConfig) string {
	if agent.ShareSessionWith != "" {
		return agent.ShareSessionWith
	}
	return agent.ShareContextWindowWith
}

func mapKeys(m map[string]AgentConfig) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
