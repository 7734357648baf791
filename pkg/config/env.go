package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"
)

var envVarPattern = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// expandEnvVars interpolates ${VAR:-default}, ${VAR} and $VAR references
// inside a single string value, grounded on hector's
// pkg/config/env.go:expandEnvVars.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPattern.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envVarPattern.braced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.braced.FindStringSubmatch(match)[1])
	})
	s = envVarPattern.simple.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.simple.FindStringSubmatch(match)[1])
	})
	return s
}

// expandEnvVarsInData walks a koanf raw map/slice tree and interpolates
// string leaves via expandEnvVars, mirroring hector's ExpandEnvVarsInData.
func expandEnvVarsInData(data interface{}) interface{} {
	switch v := data.(type) {
	case string:
		return expandEnvVars(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = expandEnvVarsInData(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = expandEnvVarsInData(val)
		}
		return out
	default:
		return v
	}
}

// applyNamedEnvOverrides applies the explicit environment variable table
// from spec.md §6.1 directly onto the merged Config, the highest-precedence
// layer. Grounded on goclaw's internal/config/config_load.go
// applyEnvOverrides: flat os.Getenv lookups over named keys rather than
// hector's generic ${VAR} string interpolation, since these names are fixed
// and don't appear inside config file string values.
func applyNamedEnvOverrides(c *Config) {
	if v, ok := os.LookupEnv("DEFAULT_MODEL"); ok {
		c.Model.Default = v
	}
	if v, ok := os.LookupEnv("DEFAULT_PROVIDER"); ok {
		c.Model.Provider = v
	}
	if v, ok := os.LookupEnv("CLIENT_PREFERENCE"); ok {
		c.Model.ClientPreference = v
	}

	target := c.Model.Default
	if target == "" {
		target = "default"
	}
	if c.ModelConfigs == nil {
		c.ModelConfigs = map[string]ModelConfigEntry{}
	}
	entry := c.ModelConfigs[target]

	if v, ok := envInt("MAX_OUTPUT_TOKENS"); ok {
		entry.MaxOutputTokens = v
	}
	if v, ok := envInt("MAX_CONTEXT_WINDOW_TOKENS"); ok {
		entry.MaxContextWindowTokens = v
	}
	if v, ok := envFloat("TEMPERATURE"); ok {
		entry.Temperature = v
	}
	if v, ok := envBool("REASONING_ENABLED"); ok {
		entry.Reasoning.Enabled = v
	}
	if v, ok := os.LookupEnv("REASONING_EFFORT"); ok {
		entry.Reasoning.Effort = v
	}
	if v, ok := envInt("REASONING_MAX_TOKENS"); ok {
		entry.Reasoning.MaxTokens = v
	}
	c.ModelConfigs[target] = entry

	if v, ok := os.LookupEnv("WRITE_ROOT"); ok {
		c.Workspace.WriteRoot = v
	}
	if v, ok := os.LookupEnv("WORKSPACE"); ok {
		c.Workspace.Path = v
	}
	if v, ok := os.LookupEnv("CWD"); ok {
		c.Workspace.CWDOverride = v
	}
	if v, ok := os.LookupEnv("NO_SETUP"); ok && v == "1" {
		c.Performance.NoSetup = true
	}

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		c.Logger.Level = v
	}
	if v, ok := os.LookupEnv("LOG_FILE"); ok {
		c.Logger.File = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
		c.Logger.Format = v
	}
}

func envInt(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func envFloat(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func envBool(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}
