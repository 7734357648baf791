package config

import (
	"os"
	"path/filepath"
)

// StandardPaths resolves the four file layer paths spec.md §6.1 describes,
// for a given app name and project root. Grounded on goclaw's
// internal/config/config_load.go ExpandHome/WorkspacePath helpers.
func StandardPaths(appName, projectRoot string) LoaderOptions {
	opts := LoaderOptions{
		ProjectDefaultsPath:  filepath.Join(projectRoot, "."+appName, "defaults.yaml"),
		ProjectConfigPath:    filepath.Join(projectRoot, "."+appName, "config.yaml"),
		ProjectOverridesPath: filepath.Join(projectRoot, "."+appName, "settings.local.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		opts.UserConfigPath = filepath.Join(home, ".config", appName, "config.yaml")
	}
	return opts
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if len(path) > 1 && (path[1] == '/' || path[1] == os.PathSeparator) {
		return filepath.Join(home, path[2:])
	}
	return path
}
