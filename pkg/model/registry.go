package model

import (
	"github.com/penguin-run/penguin/pkg/perrors"
	"github.com/penguin-run/penguin/pkg/registry"
)

// Registry resolves a model id to its ModelSpec. Resolve is pure and
// cache-backed: once a spec is registered it never changes shape, so repeat
// calls are safe to call from concurrent goroutines (pkg/core.LoadModel is
// the only mutator, and it swaps the whole *ModelSpec value).
type Registry struct {
	base *registry.BaseRegistry[*ModelSpec]
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[*ModelSpec]()}
}

// Register adds spec under spec.ModelID.
func (r *Registry) Register(spec *ModelSpec) error {
	return r.base.Register(spec.ModelID, spec)
}

// Resolve returns the ModelSpec for modelID, or a *perrors.ConfigError if
// it was never registered (spec.md §4.1: "Fails with ConfigError if an
// unknown model id is requested").
func (r *Registry) Resolve(modelID string) (*ModelSpec, error) {
	spec, ok := r.base.Get(modelID)
	if !ok {
		return nil, perrors.NewConfigError("model.Registry", "unknown model id: "+modelID, nil)
	}
	return spec, nil
}

// List returns every registered ModelSpec.
func (r *Registry) List() []*ModelSpec {
	return r.base.List()
}

// Replace atomically swaps the spec registered under spec.ModelID, used by
// pkg/core.LoadModel to reconfigure a live model without restarting.
func (r *Registry) Replace(spec *ModelSpec) error {
	_ = r.base.Remove(spec.ModelID)
	return r.base.Register(spec.ModelID, spec)
}
