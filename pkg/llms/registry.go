package llms

import (
	"fmt"

	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/registry"
)

// Registry resolves a ModelSpec's ClientPreference+Provider to a concrete
// Gateway, grounded on hector's pkg/llms/registry.go LLMRegistry/
// CreateLLMFromConfig dispatch-by-type pattern.
type Registry struct {
	*registry.BaseRegistry[Gateway]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Gateway]()}
}

// RegisterGateway adds a configured Gateway under name (e.g. "anthropic",
// "openai", "ollama", "gemini", "openrouter", "litellm").
func (r *Registry) RegisterGateway(name string, gw Gateway) error {
	if name == "" {
		return fmt.Errorf("llms: gateway name cannot be empty")
	}
	if gw == nil {
		return fmt.Errorf("llms: gateway cannot be nil")
	}
	return r.Register(name, gw)
}

// Resolve returns the Gateway responsible for spec, per its
// ClientPreference (native adapters are keyed by Provider; openrouter and
// litellm are keyed by ClientPreference directly).
func (r *Registry) Resolve(spec *model.ModelSpec) (Gateway, error) {
	key := spec.Provider
	switch spec.ClientPreference {
	case model.ClientOpenRouter:
		key = "openrouter"
	case model.ClientLiteLLM:
		key = "litellm"
	}
	gw, ok := r.Get(key)
	if !ok {
		return nil, fmt.Errorf("llms: no gateway registered for %q (client_preference=%q, provider=%q)",
			key, spec.ClientPreference, spec.Provider)
	}
	return gw, nil
}
