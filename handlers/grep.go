package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/model"
)

// GrepParams is the `grep` request (spec §4.9, §6).
type GrepParams struct {
	WorkspaceRoot   string   `json:"workspace_root"`
	Pattern         string   `json:"pattern"`
	Kinds           []string `json:"kinds"`
	CaseSensitive   bool     `json:"case_sensitive"`
	IncludeDocs     bool     `json:"include_docs"`
	Paths           []string `json:"paths"`
	ExcludePatterns []string `json:"exclude_patterns"`
}

// GrepHit is one matched symbol, optionally enriched with hover text.
type GrepHit struct {
	model.Symbol
	Doc string `json:"doc,omitempty"`
}

// GrepResult is the `grep` response; Warning carries the `\|` escaping
// hint when the result set is empty (spec §4.9 `grep`).
type GrepResult struct {
	Matches []GrepHit `json:"matches"`
	Warning string    `json:"warning,omitempty"`
}

// Grep implements spec §4.9 `grep`: regex match on symbol names, kind
// filter, case sensitivity, exclude patterns applied before the regex, and
// optional hover-doc enrichment.
func Grep(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p GrepParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("grep: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" || p.Pattern == "" {
		return nil, &daemon.ValidationError{Message: "grep: workspace_root and pattern are required"}
	}

	pattern := p.Pattern
	if !p.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("grep: invalid pattern: %v", err)}
	}

	symbols, err := collectWorkspaceSymbols(ctx, hctx, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	kindFilter := make(map[string]bool, len(p.Kinds))
	for _, k := range p.Kinds {
		kindFilter[strings.ToLower(k)] = true
	}

	var hits []GrepHit
	for _, sym := range symbols {
		if !matchesGrepScope(sym.Path, p.Paths, p.ExcludePatterns) {
			continue
		}
		if len(kindFilter) > 0 && !kindFilter[strings.ToLower(sym.Kind)] {
			continue
		}
		if !re.MatchString(sym.Name) {
			continue
		}
		hits = append(hits, GrepHit{Symbol: sym})
	}

	if p.IncludeDocs {
		if err := enrichWithDocs(ctx, hctx, p.WorkspaceRoot, hits); err != nil {
			return nil, err
		}
	}

	result := &GrepResult{Matches: hits}
	if len(hits) == 0 && strings.Contains(p.Pattern, `\|`) {
		result.Warning = `no matches; "\|" in the pattern is likely unintentional — "|" does not need escaping in this regex dialect`
	}
	return result, nil
}

func matchesGrepScope(relPath string, paths, excludePatterns []string) bool {
	if len(paths) > 0 {
		matched := false
		for _, p := range paths {
			if relPath == p || strings.HasPrefix(relPath, strings.TrimSuffix(p, "/")+"/") {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, ex := range excludePatterns {
		if ok, _ := doublestar.Match(ex, relPath); ok {
			return false
		}
	}
	return true
}

func enrichWithDocs(ctx context.Context, hctx *daemon.HandlerContext, root string, hits []GrepHit) error {
	for i := range hits {
		abs := absPath(root, hits[i].Path)
		ws, err := workspaceForPath(ctx, hctx, abs, root)
		if err != nil {
			continue
		}
		client := ws.Client()
		if client == nil {
			continue
		}
		key := fmt.Sprintf("hover:%s:%d:%d", hits[i].Path, hits[i].Line, hits[i].Column)
		if cached, ok := hctx.HoverCache.Get(key); ok {
			hits[i].Doc = string(cached)
			continue
		}
		uri, _, err := ws.EnsureDocumentOpen(ctx, abs)
		if err != nil {
			continue
		}
		hover, err := client.Hover(ctx, uri, toZeroBased(hits[i].Line), uint32(hits[i].Column))
		if err != nil || hover == nil {
			continue
		}
		doc := hoverContentsToString(hover)
		hits[i].Doc = doc
		_ = hctx.HoverCache.Set(key, []byte(doc))
	}
	return nil
}

func hoverContentsToString(hover any) string {
	type markupContent struct {
		Value string `json:"value"`
	}
	type withContents struct {
		Contents markupContent `json:"contents"`
	}
	data, err := json.Marshal(hover)
	if err != nil {
		return ""
	}
	var wc withContents
	if err := json.Unmarshal(data, &wc); err != nil {
		return ""
	}
	return wc.Contents.Value
}
