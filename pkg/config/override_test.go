package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOverrideValueCreatesFileAndNestedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.local.yaml")

	require.NoError(t, SetOverrideValue(path, "model.default", "claude-opus-4"))

	v, ok, err := GetOverrideValue(path, "model.default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "claude-opus-4", v)
}

func TestSetOverrideValuePreservesSiblingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.local.yaml")

	require.NoError(t, SetOverrideValue(path, "model.default", "a"))
	require.NoError(t, SetOverrideValue(path, "model.provider", "anthropic"))

	def, ok, err := GetOverrideValue(path, "model.default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", def)

	provider, ok, err := GetOverrideValue(path, "model.provider")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "anthropic", provider)
}

func TestGetOverrideValueMissingFileReturnsNotOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	_, ok, err := GetOverrideValue(path, "model.default")
	require.NoError(t, err)
	assert.False(t, ok)
}
