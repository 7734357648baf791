// Package model provides immutable per-model capability descriptors
// (ModelSpec) and the registry that resolves a model id to one, grounded on
// hector's pkg/llms/registry.go (CreateLLMFromConfig) and pkg/config/llm.go.
package model

import (
	"strings"
)

// ClientPreference selects which gateway adapter family handles a model.
type ClientPreference string

const (
	ClientNative     ClientPreference = "native"
	ClientOpenRouter ClientPreference = "openrouter"
	ClientLiteLLM    ClientPreference = "litellm"
)

// ReasoningStyle identifies how reasoning/thinking tokens are requested.
type ReasoningStyle string

const (
	ReasoningNone      ReasoningStyle = "none"
	ReasoningEffort    ReasoningStyle = "effort"
	ReasoningMaxTokens ReasoningStyle = "max_tokens"
)

// ReasoningEffort is the three-level effort knob for ReasoningEffort-style
// models (o1/o3/deepseek-r1 family).
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
)

const (
	defaultSafetyFraction = 0.85
	minSafetyFraction     = 0.5
	maxSafetyFraction     = 0.95
)

// ModelSpec is an immutable per-model capability descriptor. Construct one
// via NewModelSpec so derived fields (MaxHistoryTokens) are always consistent.
type ModelSpec struct {
	ModelID          string
	Provider         string
	ClientPreference ClientPreference

	MaxContextWindowTokens int
	MaxOutputTokens        int
	MaxHistoryTokens       int

	SupportsStreaming  bool
	SupportsVision     bool
	SupportsToolCalls  bool
	SupportsReasoning  bool

	ReasoningStyle         ReasoningStyle
	ReasoningEffort        ReasoningEffort
	ReasoningMaxTokens     int

	APIBase string
	APIKey  string

	// SafetyFraction is the fraction of MaxContextWindowTokens reserved as
	// MaxHistoryTokens. Clamped to [0.5, 0.95]; default 0.85.
	SafetyFraction float64
}

// Options configures NewModelSpec. Zero values fall back to spec defaults.
type Options struct {
	ModelID          string
	Provider         string
	ClientPreference ClientPreference

	MaxContextWindowTokens int
	MaxOutputTokens        int
	SafetyFraction         float64

	SupportsStreaming bool
	SupportsVision    bool
	SupportsToolCalls bool
	SupportsReasoning bool

	// ReasoningStyle, if empty, is auto-detected from ModelID via
	// DetectReasoningStyle (explicit config always wins, per spec.md §4.1).
	ReasoningStyle     ReasoningStyle
	ReasoningEffort    ReasoningEffort
	ReasoningMaxTokens int

	APIBase string
	APIKey  string
}

// NewModelSpec builds a ModelSpec, applying the safety-fraction clamp and
// auto-detecting reasoning style when not explicitly set. The invariant
// MaxHistoryTokens <= MaxContextWindowTokens always holds on return.
func NewModelSpec(opts Options) *ModelSpec {
	fraction := opts.SafetyFraction
	if fraction == 0 {
		fraction = defaultSafetyFraction
	}
	if fraction < minSafetyFraction {
		fraction = minSafetyFraction
	}
	if fraction > maxSafetyFraction {
		fraction = maxSafetyFraction
	}

	style := opts.ReasoningStyle
	effort := opts.ReasoningEffort
	maxReasoningTokens := opts.ReasoningMaxTokens
	if style == "" {
		style, effort, maxReasoningTokens = DetectReasoningStyle(opts.ModelID)
		if opts.ReasoningEffort != "" {
			effort = opts.ReasoningEffort
		}
		if opts.ReasoningMaxTokens != 0 {
			maxReasoningTokens = opts.ReasoningMaxTokens
		}
	}

	maxHistory := int(float64(opts.MaxContextWindowTokens) * fraction)

	return &ModelSpec{
		ModelID:                opts.ModelID,
		Provider:               opts.Provider,
		ClientPreference:       opts.ClientPreference,
		MaxContextWindowTokens: opts.MaxContextWindowTokens,
		MaxOutputTokens:        opts.MaxOutputTokens,
		MaxHistoryTokens:       maxHistory,
		SupportsStreaming:      opts.SupportsStreaming,
		SupportsVision:         opts.SupportsVision,
		SupportsToolCalls:      opts.SupportsToolCalls,
		SupportsReasoning:      opts.SupportsReasoning || style != ReasoningNone,
		ReasoningStyle:         style,
		ReasoningEffort:        effort,
		ReasoningMaxTokens:     maxReasoningTokens,
		APIBase:                opts.APIBase,
		APIKey:                 opts.APIKey,
		SafetyFraction:         fraction,
	}
}

// DetectReasoningStyle auto-detects reasoning style from a model-family
// string match, grounded on original_source/penguin/llm/model_config.py's
// _uses_effort_style/_uses_max_tokens_style (model_config.py:151-170):
// o1/o3/openai-o/gpt-5/gpt-6/grok submit an effort knob, Gemini
// thinking/2.5/Anthropic/"thinking"-named models submit a max-tokens budget.
// Explicit config always overrides this (see NewModelSpec).
func DetectReasoningStyle(modelID string) (ReasoningStyle, ReasoningEffort, int) {
	id := strings.ToLower(modelID)
	isGeminiThinking := strings.Contains(id, "gemini") &&
		(strings.Contains(id, "thinking") || strings.Contains(id, "2.5") || strings.Contains(id, "2-5"))

	switch {
	case strings.Contains(id, "o1"), strings.Contains(id, "o3"), strings.Contains(id, "deepseek-r1"),
		strings.Contains(id, "openai/o"), strings.Contains(id, "gpt-5"), strings.Contains(id, "gpt-6"),
		strings.Contains(id, "grok"):
		return ReasoningEffort, EffortMedium, 0
	case strings.Contains(id, "claude-3-7"), strings.Contains(id, "claude-sonnet-4"), strings.Contains(id, "claude-opus-4"),
		isGeminiThinking, strings.Contains(id, "thinking"):
		return ReasoningMaxTokens, "", 4096
	default:
		return ReasoningNone, "", 0
	}
}
