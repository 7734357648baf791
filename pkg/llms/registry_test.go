package llms

import (
	"context"
	"testing"

	"github.com/penguin-run/penguin/pkg/model"
	"github.com/penguin-run/penguin/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct{ name string }

func (f *fakeGateway) Generate(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	return Response{Text: f.name}, nil
}
func (f *fakeGateway) Stream(ctx context.Context, spec *model.ModelSpec, history []session.Message, opts Options) (Response, error) {
	return Response{Text: f.name}, nil
}

func TestRegistryResolvesByProvider(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterGateway("anthropic", &fakeGateway{name: "anthropic"}))

	spec := model.NewModelSpec(model.Options{
		ModelID: "claude-3-7-sonnet", Provider: "anthropic", MaxContextWindowTokens: 200000,
	})
	gw, err := r.Resolve(spec)
	require.NoError(t, err)
	resp, _ := gw.Generate(context.Background(), spec, nil, Options{})
	assert.Equal(t, "anthropic", resp.Text)
}

func TestRegistryResolvesOpenRouterByClientPreference(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterGateway("openrouter", &fakeGateway{name: "openrouter"}))

	spec := model.NewModelSpec(model.Options{
		ModelID: "some/model", ClientPreference: model.ClientOpenRouter, MaxContextWindowTokens: 32000,
	})
	gw, err := r.Resolve(spec)
	require.NoError(t, err)
	resp, _ := gw.Generate(context.Background(), spec, nil, Options{})
	assert.Equal(t, "openrouter", resp.Text)
}

func TestRegistryResolveMissingReturnsError(t *testing.T) {
	r := NewRegistry()
	spec := model.NewModelSpec(model.Options{ModelID: "x", Provider: "nonexistent", MaxContextWindowTokens: 1000})
	_, err := r.Resolve(spec)
	assert.Error(t, err)
}
