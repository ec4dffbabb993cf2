// Package config reads and, for the narrow workspaces-list surface,
// rewrites the daemon's config.toml (spec §6). Parsing uses
// github.com/BurntSushi/toml, the encoding the teacher's own JSON-based
// GlobalConfig generalizes from for a file-per-install daemon.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// Config mirrors the keys the daemon consumes from config.toml (spec §6).
// Unknown keys are tolerated; this struct is not the full schema a human
// might hand-edit into the file.
type Config struct {
	Daemon     DaemonConfig     `toml:"daemon"`
	Workspaces WorkspacesConfig `toml:"workspaces"`
	Servers    map[string]ServerPreference `toml:"servers"`
}

type DaemonConfig struct {
	HoverCacheSize  int64 `toml:"hover_cache_size"`
	SymbolCacheSize int64 `toml:"symbol_cache_size"`
}

type WorkspacesConfig struct {
	Roots              []string `toml:"roots"`
	ExcludedLanguages  []string `toml:"excluded_languages"`
}

type ServerPreference struct {
	Preferred string `toml:"preferred"`
}

// defaultHoverCacheBytes and defaultSymbolCacheBytes apply when config.toml
// omits the corresponding key, so a fresh install has a working byte
// budget instead of an unbounded cache (spec §4.5).
const (
	defaultHoverCacheBytes  = 64 << 20
	defaultSymbolCacheBytes = 128 << 20
)

// Load parses config.toml at path, tolerating a missing file by returning
// built-in defaults (a fresh daemon install has none yet).
func Load(path string) (*Config, error) {
	cfg := &Config{
		Daemon: DaemonConfig{
			HoverCacheSize:  defaultHoverCacheBytes,
			SymbolCacheSize: defaultSymbolCacheBytes,
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Daemon.HoverCacheSize <= 0 {
		cfg.Daemon.HoverCacheSize = defaultHoverCacheBytes
	}
	if cfg.Daemon.SymbolCacheSize <= 0 {
		cfg.Daemon.SymbolCacheSize = defaultSymbolCacheBytes
	}
	return cfg, nil
}

// AddWorkspaceRoot adds root to workspaces.roots (if absent), keeps the
// list sorted, and rewrites config.toml atomically: the full file is re-marshaled to a
// temp file in the same directory and renamed over the original, so a
// crash mid-write never leaves a half-written config (spec §6).
func AddWorkspaceRoot(path, root string) error {
	return mutateWorkspaceRoots(path, func(roots []string) []string {
		for _, r := range roots {
			if r == root {
				return roots
			}
		}
		out := append(append([]string{}, roots...), root)
		sort.Strings(out)
		return out
	})
}

// RemoveWorkspaceRoot removes root from workspaces.roots, if present.
func RemoveWorkspaceRoot(path, root string) error {
	return mutateWorkspaceRoots(path, func(roots []string) []string {
		out := make([]string, 0, len(roots))
		for _, r := range roots {
			if r != root {
				out = append(out, r)
			}
		}
		return out
	})
}

func mutateWorkspaceRoots(path string, mutate func([]string) []string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	cfg.Workspaces.Roots = mutate(cfg.Workspaces.Roots)
	return writeAtomic(path, cfg)
}

func writeAtomic(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}
