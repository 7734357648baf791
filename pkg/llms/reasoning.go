package llms

import "github.com/penguin-run/penguin/pkg/model"

// ReasoningParams is the provider-agnostic shape an adapter maps onto its
// own wire field names (spec.md §4.5 step 2): never both Effort and
// MaxTokens set, and Temperature is always zero-valued/omitted for
// effort-style models.
type ReasoningParams struct {
	Effort    string
	MaxTokens int
}

// BuildReasoningParams derives the single reasoning knob to submit for
// spec, or a zero ReasoningParams if spec doesn't support reasoning.
func BuildReasoningParams(spec *model.ModelSpec) ReasoningParams {
	if !spec.SupportsReasoning {
		return ReasoningParams{}
	}
	switch spec.ReasoningStyle {
	case model.ReasoningEffort:
		return ReasoningParams{Effort: string(spec.ReasoningEffort)}
	case model.ReasoningMaxTokens:
		return ReasoningParams{MaxTokens: spec.ReasoningMaxTokens}
	default:
		return ReasoningParams{}
	}
}

// AllowTemperature reports whether temperature may be submitted alongside
// this ModelSpec's reasoning configuration (spec.md §4.5 step 2: "never set
// temperature for effort-style reasoning models").
func AllowTemperature(spec *model.ModelSpec) bool {
	return spec.ReasoningStyle != model.ReasoningEffort
}
