package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetOverrideValue reads the YAML document at path (treating a missing file
// as empty), sets the dotted key path to value, and writes the document
// back, creating any parent directories needed. Grounded on
// original_source/penguin/config.py's _read_yaml/_set_nested/_write_yaml/
// set_config_value (config.py:210-299), which backs Penguin's "settings.local"
// project-override scope (spec.md §6.1). Unlike the koanf-driven Loader,
// which only ever reads layered config, this is a direct read-modify-write of
// one file, so it goes through yaml.v3 rather than koanf's parser wrapper.
func SetOverrideValue(path, key string, value any) error {
	doc, err := readYAMLMap(path)
	if err != nil {
		return err
	}
	setNested(doc, key, value)
	return writeYAMLMap(path, doc)
}

// GetOverrideValue reads the dotted key path out of the YAML document at
// path, returning ok=false if the file or key is absent.
func GetOverrideValue(path, key string) (value any, ok bool, err error) {
	doc, err := readYAMLMap(path)
	if err != nil {
		return nil, false, err
	}
	v, found := getNested(doc, key)
	return v, found, nil
}

func readYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func writeYAMLMap(path string, doc map[string]any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func setNested(doc map[string]any, key string, value any) {
	parts := splitKey(key)
	node := doc
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

func getNested(doc map[string]any, key string) (any, bool) {
	parts := splitKey(key)
	var node any = doc
	for _, p := range parts {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := m[p]
		if !exists {
			return nil, false
		}
		node = v
	}
	return node, true
}

func splitKey(key string) []string {
	var parts []string
	for _, p := range strings.Split(key, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
