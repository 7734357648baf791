package llms

import (
	"testing"

	"github.com/penguin-run/penguin/pkg/model"
	"github.com/stretchr/testify/assert"
)

func TestGeminiBuildRequestWiresThinkingBudget(t *testing.T) {
	g := &Gemini{Component: "llms.gemini"}
	spec := model.NewModelSpec(model.Options{
		ModelID: "gemini-2.5-pro", MaxContextWindowTokens: 1000000,
	})

	req := g.buildRequest(spec, nil, "", Options{MaxOutputTokens: 1024, Temperature: 0.7})

	if assert.NotNil(t, req.GenerationConfig.ThinkingConfig) {
		assert.Equal(t, 4096, req.GenerationConfig.ThinkingConfig.ThinkingBudget)
	}
	assert.NotNil(t, req.GenerationConfig.Temperature)
}

func TestGeminiBuildRequestOmitsThinkingBudgetWhenNotReasoning(t *testing.T) {
	g := &Gemini{Component: "llms.gemini"}
	spec := model.NewModelSpec(model.Options{
		ModelID: "gemini-2.0-flash", MaxContextWindowTokens: 1000000,
	})

	req := g.buildRequest(spec, nil, "", Options{MaxOutputTokens: 1024, Temperature: 0.7})

	assert.Nil(t, req.GenerationConfig.ThinkingConfig)
}
