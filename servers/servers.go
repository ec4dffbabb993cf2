// Package servers is the per-language server registry: which command to
// launch for which file extensions and language ids (spec §4.3).
// Capability gating lives in package lsp, not here.
package servers

import (
	"fmt"
	"os"
	"strings"
)

// Config describes how to launch one language server.
type Config struct {
	Name       string   `toml:"name"`
	Language   string   `toml:"language"`
	Command    string   `toml:"command"`
	Args       []string `toml:"args"`
	Extensions []string `toml:"extensions"`
	InitializationOptions map[string]any    `toml:"initialization_options"`
	Env                   map[string]string `toml:"env"`
	// InstallHint is surfaced in LanguageServerNotFoundError remediation
	// text when Command cannot be found on PATH (spec §7).
	InstallHint string `toml:"install_hint"`
}

// Registry maps file extensions and language ids to the Config(s) that can
// serve them. Several configs can share one Language (e.g. two Python
// servers); `servers.<lang>.preferred` in config.toml picks among them
// (spec §4.4, §6, §9 "Configuration input as enumerated options").
type Registry struct {
	servers     map[string]Config
	byExtension map[string]string
	byLanguage  map[string][]string // language -> server names, in registration order
}

// NewRegistry builds a lookup registry from a list of server configs.
func NewRegistry(configs []Config) *Registry {
	r := &Registry{
		servers:     make(map[string]Config, len(configs)),
		byExtension: make(map[string]string),
		byLanguage:  make(map[string][]string),
	}
	for _, cfg := range configs {
		r.servers[cfg.Name] = cfg
		for _, ext := range cfg.Extensions {
			r.byExtension[normalizeExt(ext)] = cfg.Name
		}
		if cfg.Language != "" {
			r.byLanguage[cfg.Language] = append(r.byLanguage[cfg.Language], cfg.Name)
		}
	}
	return r
}

// LanguageForExtension returns the language id of the server registered for
// ext, if any (spec §4.6 workspace-wide discovery's per-file language
// assignment).
func (r *Registry) LanguageForExtension(ext string) (string, bool) {
	cfg, ok := r.ForExtension(ext)
	if !ok {
		return "", false
	}
	return cfg.Language, true
}

// ForLanguage returns the Config registered for a language id, preferring
// the server named by preferred when more than one candidate exists and
// falling back to the first registered candidate otherwise (spec §9
// "Configuration input as enumerated options").
func (r *Registry) ForLanguage(language, preferred string) (Config, bool) {
	candidates := r.byLanguage[language]
	if len(candidates) == 0 {
		return Config{}, false
	}
	if preferred != "" {
		for _, name := range candidates {
			if name == preferred {
				return r.servers[name], true
			}
		}
	}
	return r.servers[candidates[0]], true
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ForExtension returns the server Config registered for a file extension
// (with or without the leading dot, matched case-insensitively), and
// whether one was found (spec §4.4
// get_or_create_workspace_for_language).
func (r *Registry) ForExtension(ext string) (Config, bool) {
	name, ok := r.byExtension[normalizeExt(ext)]
	if !ok {
		return Config{}, false
	}
	cfg, ok := r.servers[name]
	return cfg, ok
}

// ByName returns the server Config by its configured name.
func (r *Registry) ByName(name string) (Config, bool) {
	cfg, ok := r.servers[name]
	return cfg, ok
}

// Names returns every registered server name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.servers))
	for name := range r.servers {
		names = append(names, name)
	}
	return names
}

// ResolveCommand expands ${VAR} placeholders in Command/Args against the
// process environment plus the given extra bindings (typically
// WORKSPACE_ROOT), so a config.toml entry can write
// `args = ["--workspace=${WORKSPACE_ROOT}"]` without the daemon needing to
// know about that particular server's flag conventions.
func (c Config) ResolveCommand(extra map[string]string) (string, []string) {
	lookup := func(key string) string {
		if v, ok := extra[key]; ok {
			return v
		}
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return "${" + key + "}"
	}
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = os.Expand(a, lookup)
	}
	return os.Expand(c.Command, lookup), args
}

// NotFoundRemediation formats the message handlers surface when a server's
// command cannot be located (spec §7): name the missing binary and, when
// configured, how to install it.
func (c Config) NotFoundRemediation() string {
	if c.InstallHint == "" {
		return fmt.Sprintf("language server %q: command %q was not found on PATH", c.Name, c.Command)
	}
	return fmt.Sprintf("language server %q: command %q was not found on PATH (%s)", c.Name, c.Command, c.InstallHint)
}

// Defaults returns the built-in server candidates a fresh install knows
// about without any config.toml entries of its own (spec §6's
// `servers.<lang>.preferred` only ever picks among these, it does not
// define new ones). Extensions and init options follow each server's own
// published defaults; PATH discovery and install hints mirror the
// remediation text spec §7 calls out by name (rust-analyzer, gopls).
func Defaults() []Config {
	return []Config{
		{
			Name: "gopls", Language: "go", Command: "gopls", Args: []string{"serve"},
			Extensions:  []string{"go"},
			InstallHint: "install via `go install golang.org/x/tools/gopls@latest`",
		},
		{
			Name: "rust-analyzer", Language: "rust", Command: "rust-analyzer",
			Extensions:  []string{"rs"},
			InstallHint: "run `rustup component add rust-analyzer`",
		},
		{
			Name: "pyright", Language: "python", Command: "pyright-langserver", Args: []string{"--stdio"},
			Extensions:  []string{"py", "pyi"},
			InstallHint: "install via `npm install -g pyright`",
		},
		{
			Name: "typescript-language-server", Language: "typescript", Command: "typescript-language-server", Args: []string{"--stdio"},
			Extensions:  []string{"ts", "tsx", "js", "jsx", "mjs", "cjs"},
			InstallHint: "install via `npm install -g typescript-language-server typescript`",
		},
		{
			Name: "clangd", Language: "cpp", Command: "clangd",
			Extensions:  []string{"c", "h", "cc", "cpp", "hpp", "cxx"},
			InstallHint: "install clangd from your platform's LLVM package",
		},
		{
			Name: "bsl-language-server", Language: "bsl", Command: "bsl-language-server", Args: []string{"-lsp"},
			Extensions:  []string{"bsl", "os"},
			InstallHint: "download the bsl-language-server release jar",
		},
	}
}
