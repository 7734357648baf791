package llms

import (
	"testing"

	"github.com/penguin-run/penguin/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestBuildReasoningParamsEffortStyle(t *testing.T) {
	spec := model.NewModelSpec(model.Options{
		ModelID: "o3-mini", MaxContextWindowTokens: 100000,
	})
	params := BuildReasoningParams(spec)
	assert.Equal(t, string(model.EffortMedium), params.Effort)
	assert.Zero(t, params.MaxTokens)
	assert.False(t, AllowTemperature(spec))
}

func TestBuildReasoningParamsMaxTokensStyle(t *testing.T) {
	spec := model.NewModelSpec(model.Options{
		ModelID: "claude-opus-4-20250101", MaxContextWindowTokens: 200000,
	})
	params := BuildReasoningParams(spec)
	assert.Equal(t, 4096, params.MaxTokens)
	assert.Empty(t, params.Effort)
	assert.True(t, AllowTemperature(spec))
}

func TestBuildReasoningParamsNoReasoning(t *testing.T) {
	spec := model.NewModelSpec(model.Options{
		ModelID: "gpt-4o", MaxContextWindowTokens: 128000,
	})
	params := BuildReasoningParams(spec)
	assert.Equal(t, ReasoningParams{}, params)
	assert.True(t, AllowTemperature(spec))
}
