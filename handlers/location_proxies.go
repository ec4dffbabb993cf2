package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/lsp"
	"github.com/lspd/lspd/pathutil"
)

// ProxyParams covers the shared request shape of declaration, references,
// implementations, subtypes, and supertypes (spec §6).
type ProxyParams struct {
	Path          string `json:"path"`
	WorkspaceRoot string `json:"workspace_root"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	Context       int    `json:"context"`
}

// ProxyResult wraps a location list.
type ProxyResult struct {
	Locations []Location `json:"locations"`
}

func decodeProxyParams(raw json.RawMessage, name string) (ProxyParams, error) {
	var p ProxyParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &daemon.ValidationError{Message: fmt.Sprintf("%s: invalid params: %v", name, err)}
	}
	if p.Path == "" || p.WorkspaceRoot == "" {
		return p, &daemon.ValidationError{Message: fmt.Sprintf("%s: path and workspace_root are required", name)}
	}
	return p, nil
}

// openAt resolves the Workspace for path and ensures the document is
// mirrored, returning the client and the document's URI.
func openAt(ctx context.Context, hctx *daemon.HandlerContext, path, root string) (*lsp.Client, string, string, error) {
	ws, err := workspaceForPath(ctx, hctx, path, root)
	if err != nil {
		return nil, "", "", err
	}
	client := ws.Client()
	if client == nil {
		return nil, "", "", fmt.Errorf("handlers: workspace for %s has no running client", path)
	}
	uri, _, err := ws.EnsureDocumentOpen(ctx, path)
	if err != nil {
		return nil, "", "", err
	}
	return client, uri, ws.ServerName, nil
}

// Declaration implements spec §4.9 `declaration`.
func Declaration(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	p, err := decodeProxyParams(raw, "declaration")
	if err != nil {
		return nil, err
	}
	client, uri, server, err := openAt(ctx, hctx, p.Path, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	if !client.Supports("declaration") {
		return nil, &lsp.MethodNotSupportedError{Method: "textDocument/declaration", ServerName: server}
	}
	locs, err := client.Declaration(ctx, uri, toZeroBased(p.Line), uint32(p.Column))
	if err != nil {
		return nil, asMethodNotSupported(err, "textDocument/declaration", server)
	}
	return &ProxyResult{Locations: toLocations(locs)}, nil
}

// References implements spec §4.9 `references`.
func References(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	p, err := decodeProxyParams(raw, "references")
	if err != nil {
		return nil, err
	}
	client, uri, server, err := openAt(ctx, hctx, p.Path, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	if !client.Supports("references") {
		return nil, &lsp.MethodNotSupportedError{Method: "textDocument/references", ServerName: server}
	}
	locs, err := client.References(ctx, uri, toZeroBased(p.Line), uint32(p.Column), true)
	if err != nil {
		return nil, asMethodNotSupported(err, "textDocument/references", server)
	}
	return &ProxyResult{Locations: toLocations(locs)}, nil
}

// Implementations implements spec §4.9 `implementations`.
func Implementations(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	p, err := decodeProxyParams(raw, "implementations")
	if err != nil {
		return nil, err
	}
	client, uri, server, err := openAt(ctx, hctx, p.Path, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	if !client.Supports("implementation") {
		return nil, &lsp.MethodNotSupportedError{Method: "textDocument/implementation", ServerName: server}
	}
	locs, err := client.Implementation(ctx, uri, toZeroBased(p.Line), uint32(p.Column))
	if err != nil {
		return nil, asMethodNotSupported(err, "textDocument/implementation", server)
	}
	return &ProxyResult{Locations: toLocations(locs)}, nil
}

// Subtypes implements spec §4.9 `subtypes`: prepareTypeHierarchy then
// typeHierarchy/subtypes.
func Subtypes(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	return typeHierarchy(ctx, hctx, raw, "subtypes")
}

func typeHierarchy(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage, mode string) (any, error) {
	p, err := decodeProxyParams(raw, mode)
	if err != nil {
		return nil, err
	}
	client, uri, server, err := openAt(ctx, hctx, p.Path, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	if !client.Supports("typeHierarchy") {
		return nil, &lsp.MethodNotSupportedError{Method: "textDocument/prepareTypeHierarchy", ServerName: server}
	}
	roots, err := client.PrepareTypeHierarchy(ctx, uri, toZeroBased(p.Line), uint32(p.Column))
	if err != nil {
		return nil, asMethodNotSupported(err, "textDocument/prepareTypeHierarchy", server)
	}
	if len(roots) == 0 {
		return &ProxyResult{}, nil
	}

	var out []Location
	for _, root := range roots {
		var items []Location
		if mode == "subtypes" {
			children, err := client.Subtypes(ctx, root)
			if err != nil {
				return nil, asMethodNotSupported(err, "typeHierarchy/subtypes", server)
			}
			items = typeHierarchyItemsToLocations(children)
		} else {
			parents, err := client.Supertypes(ctx, root)
			if err != nil {
				return nil, asMethodNotSupported(err, "typeHierarchy/supertypes", server)
			}
			items = typeHierarchyItemsToLocations(parents)
		}
		out = append(out, items...)
	}
	return &ProxyResult{Locations: out}, nil
}

// Supertypes implements spec §4.9 `supertypes`: prepareTypeHierarchy then
// typeHierarchy/supertypes.
func Supertypes(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	return typeHierarchy(ctx, hctx, raw, "supertypes")
}

// typeHierarchyItemsToLocations projects type-hierarchy items down to the
// client-facing Location shape; callers needing name/detail use the items
// directly before this conversion.
func typeHierarchyItemsToLocations(items []protocol.TypeHierarchyItem) []Location {
	out := make([]Location, len(items))
	for i, item := range items {
		out[i] = Location{
			Path:   pathutil.ToFilePath(string(item.Uri)),
			Line:   toOneBased(item.Range.Start.Line),
			Column: int(item.Range.Start.Character) + 1,
		}
	}
	return out
}
