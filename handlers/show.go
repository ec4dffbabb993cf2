package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/pathutil"
	"github.com/lspd/lspd/resolver"
)

// ShowParams is the `show` request (spec §4.9, §6).
type ShowParams struct {
	Path           string `json:"path"`
	WorkspaceRoot  string `json:"workspace_root"`
	Line           int    `json:"line"`
	Column         int    `json:"column"`
	Context        int    `json:"context"`
	Body           bool   `json:"body"`
	DirectLocation bool   `json:"direct_location"`
	RangeStartLine int    `json:"range_start_line"`
	RangeEndLine   int    `json:"range_end_line"`
	Head           int    `json:"head"`
	Symbol         string `json:"symbol"`
	Kind           string `json:"kind"`
}

// ShowResult is the union result `show` produces: either a location list
// (when Body is false) or a body slice (spec §4.9 `show`).
type ShowResult struct {
	Locations []Location `json:"locations,omitempty"`
	Body      *BodySlice `json:"body,omitempty"`
}

// BodySlice is a truncatable slice of source lines around a resolved
// symbol's range (spec §4.9 "When total_lines > head, truncate and flag
// truncated with the symbol name").
type BodySlice struct {
	Path           string `json:"path"`
	StartLine      int    `json:"start_line"`
	EndLine        int    `json:"end_line"`
	Content        string `json:"content"`
	Truncated      bool   `json:"truncated"`
	TruncatedName  string `json:"truncated_symbol,omitempty"`
}

const defaultHead = 200

// Show implements spec §4.9 `show`.
func Show(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p ShowParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("show: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" {
		return nil, &daemon.ValidationError{Message: "show: workspace_root is required"}
	}
	if p.Head <= 0 {
		p.Head = defaultHead
	}

	path := p.Path
	line := p.Line
	var containerRange *[2]int

	if p.Symbol != "" {
		symbols, err := collectWorkspaceSymbols(ctx, hctx, p.WorkspaceRoot)
		if err != nil {
			return nil, err
		}
		resolved, err := resolver.Resolve(symbols, p.Symbol)
		if err != nil {
			return nil, err
		}
		path = absPath(p.WorkspaceRoot, resolved.Path)
		line = resolved.Line
		containerRange = &[2]int{resolved.RangeStartLine, resolved.RangeEndLine}
	}

	if p.DirectLocation && p.RangeStartLine > 0 && p.RangeEndLine > 0 {
		content, err := readBody(path, p.RangeStartLine, p.RangeEndLine, p.Context)
		if err != nil {
			return nil, err
		}
		return &ShowResult{Body: content}, nil
	}

	ws, err := workspaceForPath(ctx, hctx, path, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	client := ws.Client()
	if client == nil {
		return nil, fmt.Errorf("show: workspace for %s has no running client", path)
	}

	uri, _, err := ws.EnsureDocumentOpen(ctx, path)
	if err != nil {
		return nil, err
	}

	if !p.Body {
		locs, err := client.Definition(ctx, uri, toZeroBased(line), uint32(p.Column))
		if err != nil {
			return nil, daemon2MethodNotSupported(err, "textDocument/definition", ws.ServerName)
		}
		return &ShowResult{Locations: toLocations(locs)}, nil
	}

	startLine, endLine := p.RangeStartLine, p.RangeEndLine
	if containerRange != nil && startLine == 0 {
		startLine, endLine = containerRange[0], containerRange[1]
	}
	if startLine == 0 {
		defLocs, err := client.Definition(ctx, uri, toZeroBased(line), uint32(p.Column))
		if err != nil {
			return nil, daemon2MethodNotSupported(err, "textDocument/definition", ws.ServerName)
		}
		if len(defLocs) == 0 {
			return nil, fmt.Errorf("show: no definition found at %s:%d", path, line)
		}
		defPath := pathutil.ToFilePath(string(defLocs[0].Uri))
		defLine := toOneBased(defLocs[0].Range.Start.Line)

		defURI, _, err := ws.EnsureDocumentOpen(ctx, defPath)
		if err != nil {
			return nil, err
		}
		docSymbols, err := client.DocumentSymbols(ctx, defURI)
		if err != nil {
			return nil, err
		}
		sLine, eLine, name, kind := enclosingSymbolRange(docSymbols, defLine)
		path = defPath
		startLine, endLine = sLine, eLine
		if startLine == endLine && (kind == "Constant" || kind == "Variable") {
			// Single-line constant/variable range; expand by balancing
			// brackets/strings (spec §4.9 "For constant/variable symbols
			// whose LSP range is a single line", supplemented from
			// leta/daemon/handlers/show.py's symbol_kind in ("Constant",
			// "Variable") gate — every other single-line symbol kind keeps
			// its true one-line range).
			startLine, endLine = expandBalancedRange(path, startLine)
		}
		_ = name
	}

	body, err := readBody(path, startLine, endLine, p.Context)
	if err != nil {
		return nil, err
	}
	body.Truncated, body.TruncatedName = truncateIfNeeded(body, p.Head, p.Symbol)
	return &ShowResult{Body: body}, nil
}

func absPath(root, relPath string) string {
	if strings.HasPrefix(relPath, "/") {
		return relPath
	}
	return root + "/" + relPath
}

func readBody(path string, startLine, endLine, context int) (*BodySlice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("show: read %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")

	s := startLine - context
	e := endLine + context
	if s < 1 {
		s = 1
	}
	if e > len(lines) {
		e = len(lines)
	}

	slice := lines[s-1 : e]
	return &BodySlice{
		Path:      path,
		StartLine: s,
		EndLine:   e,
		Content:   strings.Join(slice, "\n"),
	}, nil
}

func truncateIfNeeded(body *BodySlice, head int, symbolName string) (bool, string) {
	totalLines := body.EndLine - body.StartLine + 1
	if totalLines <= head {
		return false, ""
	}
	lines := strings.Split(body.Content, "\n")
	if len(lines) > head {
		lines = lines[:head]
	}
	body.Content = strings.Join(lines, "\n")
	body.EndLine = body.StartLine + head - 1
	return true, symbolName
}

// daemon2MethodNotSupported is a thin pass-through kept separate from the
// lsp package's own AsMethodNotSupported so handler files don't need to
// import lsp just for this conversion.
func daemon2MethodNotSupported(err error, method, serverName string) error {
	return asMethodNotSupported(err, method, serverName)
}
