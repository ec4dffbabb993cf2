// Package handlers implements one file per daemon command (spec §4.9),
// each composing the Session, caches, symbol index, and resolver behind a
// typed request/result pair. Handlers never swallow unknown errors; only
// the specific LSP error classes are caught and translated, matching the
// propagation policy in spec §7 — the daemon package's Dispatcher is the
// single place exceptions become the JSON error envelope.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/model"
	"github.com/lspd/lspd/symbolindex"
	"github.com/lspd/lspd/workspace"
)

// collectWorkspaceSymbols walks root, groups discovered files by language,
// gets-or-creates the Workspace for each language, and flattens every
// file's symbols through the shared symbol cache (spec §4.6 "Surviving
// files are grouped by language and processed per-Workspace").
func collectWorkspaceSymbols(ctx context.Context, hctx *daemon.HandlerContext, root string) ([]model.Symbol, error) {
	excluded := make(map[string]bool, len(hctx.Config.Workspaces.ExcludedLanguages))
	for _, lang := range hctx.Config.Workspaces.ExcludedLanguages {
		excluded[lang] = true
	}

	byLanguage := make(map[string][]string)
	resolve := func(ext string) (string, bool, bool) {
		lang, ok := hctx.Registry.LanguageForExtension(ext)
		if !ok {
			return "", false, false
		}
		return lang, excluded[lang], true
	}

	files, err := symbolindex.DiscoverFiles(root, resolve)
	if err != nil {
		return nil, fmt.Errorf("handlers: discover files under %s: %w", root, err)
	}
	for _, f := range files {
		ext := strings.TrimPrefix(strings.ToLower(extOf(f)), ".")
		lang, ok := hctx.Registry.LanguageForExtension(ext)
		if !ok || excluded[lang] {
			continue
		}
		byLanguage[lang] = append(byLanguage[lang], f)
	}

	var all []model.Symbol
	for lang, langFiles := range byLanguage {
		ws, err := hctx.Session.GetOrCreateWorkspaceForLanguage(ctx, lang, root)
		if err != nil {
			return nil, err
		}
		idx := symbolindex.New(hctx.SymbolCache, root)
		for _, f := range langFiles {
			symbols, err := idx.Symbols(ctx, ws, f)
			if err != nil {
				return nil, err
			}
			all = append(all, symbols...)
		}
	}
	return all, nil
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

// workspaceForPath resolves the Workspace that owns path (starting its
// server if not already running) and returns it (spec §4.4
// get_or_create_workspace).
func workspaceForPath(ctx context.Context, hctx *daemon.HandlerContext, path, root string) (*workspace.Workspace, error) {
	return hctx.Session.GetOrCreateWorkspace(ctx, path, root)
}
