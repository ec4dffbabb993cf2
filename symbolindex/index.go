// Package symbolindex collects document symbols through a Workspace's
// language server and caches the flattened result per file content (spec
// §4.6).
package symbolindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/lspd/lspd/cache"
	"github.com/lspd/lspd/model"
)

// DocumentSymbolSource is the subset of Workspace behavior the index needs:
// open a file (without disturbing whether it was already open), fetch its
// symbol tree, and close it back down if the index itself opened it.
type DocumentSymbolSource interface {
	EnsureDocumentOpen(ctx context.Context, absPath string) (uri string, alreadyOpen bool, err error)
	DocumentSymbols(ctx context.Context, uri string) ([]protocol.DocumentSymbol, error)
	CloseDocument(ctx context.Context, absPath string) error
}

// Index collects and caches symbols for files in one workspace.
type Index struct {
	cache *cache.Cache
	root  string
}

// New builds an Index backed by a shared persistent cache, scoped to one
// workspace root (part of the cache key, spec §4.6).
func New(c *cache.Cache, workspaceRoot string) *Index {
	return &Index{cache: c, root: workspaceRoot}
}

// excludedDirs lists directory names skipped during workspace-wide
// discovery (spec §4.6).
var excludedDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true, ".venv": true,
	"venv": true, "build": true, "dist": true, "target": true, ".tox": true,
	".eggs": true, "vendor": true,
}

// LanguageResolver maps a file's extension to a server/language id, or
// reports false when no server is configured for it.
type LanguageResolver func(ext string) (languageID string, excluded bool, ok bool)

// DiscoverFiles walks root, skipping excludedDirs and hidden directories,
// and returns the absolute paths of files whose extension resolves to a
// configured, non-excluded language (spec §4.6 workspace-wide discovery).
func DiscoverFiles(root string, resolve LanguageResolver) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (excludedDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		_, excluded, ok := resolve(ext)
		if !ok || excluded {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// Symbols returns the flattened symbol list for absPath, using the cache
// when the file's content hash hasn't changed since it was last indexed
// (spec §4.6).
func (idx *Index) Symbols(ctx context.Context, src DocumentSymbolSource, absPath string) ([]model.Symbol, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("symbolindex: read %s: %w", absPath, err)
	}

	key := idx.cacheKey(absPath, contentSHA(content))
	if raw, ok := idx.cache.Get(key); ok {
		var symbols []model.Symbol
		if err := json.Unmarshal(raw, &symbols); err == nil {
			return symbols, nil
		}
		// Fall through and recompute on a corrupt cache record.
	}

	uri, alreadyOpen, err := src.EnsureDocumentOpen(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if !alreadyOpen {
		defer src.CloseDocument(ctx, absPath)
	}

	docSymbols, err := src.DocumentSymbols(ctx, uri)
	if err != nil {
		return nil, err
	}

	relPath, err := filepath.Rel(idx.root, absPath)
	if err != nil {
		relPath = absPath
	}
	relPath = filepath.ToSlash(relPath)

	symbols := Flatten(docSymbols, relPath)

	if encoded, err := json.Marshal(symbols); err == nil {
		_ = idx.cache.Set(key, encoded)
	}

	return symbols, nil
}

func (idx *Index) cacheKey(absPath, contentSHA string) string {
	return fmt.Sprintf("symbols\x00%s\x00%s\x00%s", absPath, idx.root, contentSHA)
}

// contentSHA returns the first 16 hex characters of the SHA-256 of
// content, per spec §4.6's cache-key definition.
func contentSHA(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:16]
}

// Flatten converts a DocumentSymbol tree (or a pre-flattened
// SymbolInformation-derived slice, which already has no children) into the
// flat []model.Symbol records the resolver consumes (spec §4.6).
func Flatten(symbols []protocol.DocumentSymbol, relPath string) []model.Symbol {
	var out []model.Symbol
	var walk func(sym protocol.DocumentSymbol, container string)
	walk = func(sym protocol.DocumentSymbol, container string) {
		out = append(out, model.Symbol{
			Name:           sym.Name,
			Kind:           SymbolKindName(sym.Kind),
			Path:           relPath,
			Line:           int(sym.SelectionRange.Start.Line) + 1,
			Column:         int(sym.SelectionRange.Start.Character) + 1,
			Container:      container,
			Detail:         sym.Detail,
			RangeStartLine: int(sym.Range.Start.Line) + 1,
			RangeEndLine:   int(sym.Range.End.Line) + 1,
		})
		for _, child := range sym.Children {
			walk(child, sym.Name)
		}
	}
	for _, sym := range symbols {
		walk(sym, "")
	}
	return out
}

// symbolKindNames maps the standard LSP 3.17 SymbolKind integers to their
// canonical capitalized names (spec §3: "`kind` is one of the LSP
// SymbolKind names"; spec §8 scenario S1 requires `kind: "Class"`
// verbatim, not a lowercased form). The resolver's type-preference rule
// (resolver.go's `typeKinds`) lowercases before comparing, so this
// capitalization is safe for that match too.
var symbolKindNames = map[protocol.SymbolKind]string{
	1: "File", 2: "Module", 3: "Namespace", 4: "Package", 5: "Class",
	6: "Method", 7: "Property", 8: "Field", 9: "Constructor", 10: "Enum",
	11: "Interface", 12: "Function", 13: "Variable", 14: "Constant",
	15: "String", 16: "Number", 17: "Boolean", 18: "Array", 19: "Object",
	20: "Key", 21: "Null", 22: "EnumMember", 23: "Struct", 24: "Event",
	25: "Operator", 26: "TypeParameter",
}

// SymbolKindName converts an LSP SymbolKind integer to its canonical
// capitalized name, for callers outside this package (e.g. handlers/lsp_helpers.go)
// that need to compare a raw protocol.SymbolKind against a model.Symbol's
// string Kind.
func SymbolKindName(kind protocol.SymbolKind) string {
	if name, ok := symbolKindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("kind_%d", kind)
}
