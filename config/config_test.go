package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.HoverCacheSize != defaultHoverCacheBytes {
		t.Fatalf("HoverCacheSize = %d", cfg.Daemon.HoverCacheSize)
	}
}

func TestLoadParsesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[daemon]
hover_cache_size = 1048576
symbol_cache_size = 2097152

[workspaces]
roots = ["/home/user/proj"]
excluded_languages = ["json"]

[servers.go]
preferred = "gopls"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Daemon.HoverCacheSize != 1048576 {
		t.Fatalf("HoverCacheSize = %d", cfg.Daemon.HoverCacheSize)
	}
	if len(cfg.Workspaces.Roots) != 1 || cfg.Workspaces.Roots[0] != "/home/user/proj" {
		t.Fatalf("Roots = %v", cfg.Workspaces.Roots)
	}
	if cfg.Servers["go"].Preferred != "gopls" {
		t.Fatalf("Servers[go].Preferred = %q", cfg.Servers["go"].Preferred)
	}
}

func TestAddAndRemoveWorkspaceRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := AddWorkspaceRoot(path, "/a"); err != nil {
		t.Fatalf("AddWorkspaceRoot: %v", err)
	}
	if err := AddWorkspaceRoot(path, "/b"); err != nil {
		t.Fatalf("AddWorkspaceRoot: %v", err)
	}
	// Adding the same root twice must not duplicate it.
	if err := AddWorkspaceRoot(path, "/a"); err != nil {
		t.Fatalf("AddWorkspaceRoot: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Workspaces.Roots) != 2 {
		t.Fatalf("Roots = %v", cfg.Workspaces.Roots)
	}

	if err := RemoveWorkspaceRoot(path, "/a"); err != nil {
		t.Fatalf("RemoveWorkspaceRoot: %v", err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Workspaces.Roots) != 1 || cfg.Workspaces.Roots[0] != "/b" {
		t.Fatalf("Roots after remove = %v", cfg.Workspaces.Roots)
	}
}
