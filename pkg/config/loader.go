package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/consul/api"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigType selects the backend the project-local config layer is sourced
// from. Only "file" and "consul" are supported: the teacher's etcd and
// zookeeper backends were dropped, see DESIGN.md.
type ConfigType string

const (
	ConfigTypeFile   ConfigType = "file"
	ConfigTypeConsul ConfigType = "consul"
)

// LoaderOptions names every layer in spec.md §6.1's precedence order, lowest
// to highest: built-in defaults, ProjectDefaultsPath, UserConfigPath,
// ProjectConfigPath (or Consul), ProjectOverridesPath, then the named
// environment variable table. Any path left empty is skipped.
type LoaderOptions struct {
	// ProjectDefaultsPath is an optional project-shipped defaults file.
	ProjectDefaultsPath string
	// UserConfigPath is the per-user config file, e.g.
	// "~/.config/penguin/config.yaml".
	UserConfigPath string
	// ProjectConfigPath is the project-local config file, e.g.
	// "<project>/.penguin/config.yaml". Ignored when Type == ConfigTypeConsul.
	ProjectConfigPath string
	// ProjectOverridesPath is gitignored and wins over ProjectConfigPath,
	// e.g. "<project>/.penguin/settings.local.yaml".
	ProjectOverridesPath string

	// Type selects the backend for the project-local layer. Defaults to
	// ConfigTypeFile.
	Type ConfigType
	// ConsulAddress/ConsulKey apply when Type == ConfigTypeConsul.
	ConsulAddress string
	ConsulKey     string

	// Watch starts an fsnotify watch over every file layer that exists on
	// disk; OnChange fires with the freshly reloaded Config.
	Watch    bool
	OnChange func(*Config) error
}

// Loader merges Penguin's configuration layers and optionally watches the
// backing files for changes, grounded on hector's pkg/config/koanf_loader.go
// (Loader/NewLoader/Load/watch), extended from a single-layer load into the
// multi-layer merge spec.md §6.1 requires.
type Loader struct {
	opts   LoaderOptions
	parser *yaml.YAML

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewLoader(opts LoaderOptions) *Loader {
	if opts.Type == "" {
		opts.Type = ConfigTypeFile
	}
	return &Loader{opts: opts, parser: yaml.Parser(), stopCh: make(chan struct{})}
}

// Load reads every layer in ascending precedence, applies ${VAR} expansion
// and the named environment variable table, validates the result, and
// starts the watch goroutine if requested.
func (l *Loader) Load() (*Config, error) {
	cfg, _, err := l.load()
	if err != nil {
		return nil, err
	}

	if l.opts.Watch {
		if paths := l.existingFilePaths(); len(paths) > 0 {
			if err := l.startWatch(paths); err != nil {
				return nil, fmt.Errorf("config watch: %w", err)
			}
		}
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, *koanf.Koanf, error) {
	k := koanf.New(".")

	defaultsMap, err := l.parser.Unmarshal([]byte(defaultConfigYAML))
	if err != nil {
		return nil, nil, fmt.Errorf("parse built-in defaults: %w", err)
	}
	if err := k.Load(confmap.Provider(defaultsMap, "."), nil); err != nil {
		return nil, nil, fmt.Errorf("load built-in defaults: %w", err)
	}

	for _, path := range []string{l.opts.ProjectDefaultsPath, l.opts.UserConfigPath} {
		if err := l.loadFileLayer(k, path); err != nil {
			return nil, nil, err
		}
	}

	if l.opts.Type == ConfigTypeConsul && l.opts.ConsulKey != "" {
		if err := l.loadConsulLayer(k); err != nil {
			return nil, nil, err
		}
	} else if err := l.loadFileLayer(k, l.opts.ProjectConfigPath); err != nil {
		return nil, nil, err
	}

	if err := l.loadFileLayer(k, l.opts.ProjectOverridesPath); err != nil {
		return nil, nil, err
	}

	if err := expandInKoanf(k); err != nil {
		return nil, nil, err
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, nil, fmt.Errorf("unmarshal merged config: %w", err)
	}

	cfg.SetDefaults()
	applyNamedEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, k, nil
}

func (l *Loader) loadFileLayer(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), l.parser); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (l *Loader) loadConsulLayer(k *koanf.Koanf) error {
	consulCfg := api.DefaultConfig()
	if l.opts.ConsulAddress != "" {
		consulCfg.Address = l.opts.ConsulAddress
	}
	provider := consul.Provider(consul.Config{Cfg: consulCfg, Key: l.opts.ConsulKey})
	if err := k.Load(provider, l.parser); err != nil {
		return fmt.Errorf("load consul key %s: %w", l.opts.ConsulKey, err)
	}
	return nil
}

func expandInKoanf(k *koanf.Koanf) error {
	expanded, ok := expandEnvVarsInData(k.Raw()).(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected type expanding config env vars")
	}
	return k.Load(confmap.Provider(expanded, "."), nil)
}

func (l *Loader) existingFilePaths() []string {
	var out []string
	for _, path := range []string{l.opts.ProjectDefaultsPath, l.opts.UserConfigPath, l.opts.ProjectConfigPath, l.opts.ProjectOverridesPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			out = append(out, path)
		}
	}
	return out
}

// startWatch fires OnChange with a freshly reloaded Config whenever any
// watched layer file changes. Grounded on hector's Loader.watch goroutine,
// but driven directly by fsnotify over the containing directories rather
// than koanf's single-provider Watcher interface, since layers here span
// several independent files instead of one.
func (l *Loader) startWatch(paths []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := map[string]bool{}
	for _, path := range paths {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	watched := make(map[string]bool, len(paths))
	for _, p := range paths {
		watched[p] = true
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-l.stopCh:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[ev.Name] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cfg, _, err := l.load()
				if err != nil || l.opts.OnChange == nil {
					continue
				}
				_ = l.opts.OnChange(cfg)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Stop ends the background watch goroutine, if one was started.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}
