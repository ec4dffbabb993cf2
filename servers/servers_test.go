package servers

import (
	"strings"
	"testing"
)

func TestRegistryForExtension(t *testing.T) {
	r := NewRegistry([]Config{
		{Name: "gopls", Command: "gopls", Extensions: []string{".go"}},
		{Name: "rust-analyzer", Command: "rust-analyzer", Extensions: []string{"rs"}},
	})

	cfg, ok := r.ForExtension(".go")
	if !ok || cfg.Name != "gopls" {
		t.Fatalf("ForExtension(.go) = %+v, %v", cfg, ok)
	}

	cfg, ok = r.ForExtension("RS")
	if !ok || cfg.Name != "rust-analyzer" {
		t.Fatalf("ForExtension(RS) = %+v, %v", cfg, ok)
	}

	if _, ok := r.ForExtension("py"); ok {
		t.Fatalf("ForExtension(py) should not resolve")
	}
}

func TestResolveCommandExpandsPlaceholders(t *testing.T) {
	cfg := Config{
		Name:    "gopls",
		Command: "gopls",
		Args:    []string{"--workspace=${WORKSPACE_ROOT}"},
	}

	cmd, args := cfg.ResolveCommand(map[string]string{"WORKSPACE_ROOT": "/repo"})
	if cmd != "gopls" {
		t.Fatalf("command = %q", cmd)
	}
	if len(args) != 1 || args[0] != "--workspace=/repo" {
		t.Fatalf("args = %v", args)
	}
}

func TestResolveCommandLeavesUnknownPlaceholder(t *testing.T) {
	cfg := Config{Command: "x", Args: []string{"${NOT_SET_ANYWHERE}"}}
	_, args := cfg.ResolveCommand(nil)
	if args[0] != "${NOT_SET_ANYWHERE}" {
		t.Fatalf("expected placeholder preserved, got %q", args[0])
	}
}

func TestNotFoundRemediationIncludesInstallHint(t *testing.T) {
	cfg := Config{Name: "bsl", Command: "bsl-language-server", InstallHint: "install via the bsl-language-server release jar"}
	msg := cfg.NotFoundRemediation()
	if msg == "" {
		t.Fatal("expected non-empty remediation message")
	}
	if !strings.Contains(msg, cfg.InstallHint) {
		t.Fatalf("remediation %q does not include install hint %q", msg, cfg.InstallHint)
	}
}
