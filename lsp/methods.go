package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
)

// Initialize performs the initialize/initialized handshake and stores the
// negotiated server capabilities (spec §4.2, §4.3).
func (c *Client) Initialize(ctx context.Context, rootURI string, initOptions map[string]any) (*protocol.InitializeResult, error) {
	c.mu.Lock()
	c.status = StatusInitializing
	c.clientCapabilities = clientCapabilities()
	c.mu.Unlock()

	uri := protocol.DocumentUri(rootURI)
	params := protocol.InitializeParams{
		RootUri:               &uri,
		Capabilities:          c.clientCapabilities,
		InitializationOptions: initOptions,
	}

	var result protocol.InitializeResult
	if err := c.SendRequest(ctx, "initialize", params, &result, 30*time.Second); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.serverCapabilities = result.Capabilities
	c.mu.Unlock()

	if err := c.SendNotification(ctx, "initialized", protocol.InitializedParams{}); err != nil {
		return &result, err
	}

	c.mu.Lock()
	c.status = StatusReady
	c.mu.Unlock()

	return &result, nil
}

// DidOpen notifies the server a document is open (spec §4.3
// ensure_document_open).
func (c *Client) DidOpen(ctx context.Context, uri string, languageID protocol.LanguageKind, text string, version int32) error {
	return c.SendNotification(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			Uri:        protocol.DocumentUri(uri),
			LanguageId: languageID,
			Version:    version,
			Text:       text,
		},
	})
}

// DidChange notifies the server of a full-text document update.
func (c *Client) DidChange(ctx context.Context, uri string, version int32, text string) error {
	return c.SendNotification(ctx, "textDocument/didChange", protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			Uri:     protocol.DocumentUri(uri),
			Version: version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{
			{Value: protocol.TextDocumentContentChangeEventWhole{Text: text}},
		},
	})
}

// DidClose notifies the server a document is no longer open.
func (c *Client) DidClose(ctx context.Context, uri string) error {
	return c.SendNotification(ctx, "textDocument/didClose", protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
	})
}

// DidChangeWatchedFiles forwards filesystem change events observed outside
// the editor (spec §4.3 notify_files_changed).
func (c *Client) DidChangeWatchedFiles(ctx context.Context, changes []protocol.FileEvent) error {
	return c.SendNotification(ctx, "workspace/didChangeWatchedFiles", protocol.DidChangeWatchedFilesParams{
		Changes: changes,
	})
}

// WorkspaceSymbols sends a workspace-wide workspace/symbol query. The
// resolver does not call it; it works from the symbol index (spec §4.6).
func (c *Client) WorkspaceSymbols(ctx context.Context, query string) ([]protocol.WorkspaceSymbol, error) {
	var result []protocol.WorkspaceSymbol
	err := c.SendRequest(ctx, "workspace/symbol", protocol.WorkspaceSymbolParams{Query: query}, &result, 60*time.Second)
	return result, err
}

// DocumentSymbols returns a document's symbol tree, falling back from the
// hierarchical DocumentSymbol[] shape to the flat SymbolInformation[] shape
// when a server only speaks the older form (spec §4.6).
func (c *Client) DocumentSymbols(ctx context.Context, uri string) ([]protocol.DocumentSymbol, error) {
	var raw json.RawMessage
	params := protocol.DocumentSymbolParams{TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)}}
	if err := c.SendRequest(ctx, "textDocument/documentSymbol", params, &raw, 60*time.Second); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if _, hasRange := firstHasRange(raw); hasRange {
		var hierarchical []protocol.DocumentSymbol
		if err := json.Unmarshal(raw, &hierarchical); err == nil {
			return hierarchical, nil
		}
	}

	var flat []protocol.SymbolInformation
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("lsp: unrecognized documentSymbol response: %w", err)
	}

	out := make([]protocol.DocumentSymbol, len(flat))
	for i, info := range flat {
		out[i] = protocol.DocumentSymbol{
			Name:           info.Name,
			Kind:           info.Kind,
			Range:          info.Location.Range,
			SelectionRange: info.Location.Range,
		}
	}
	return out, nil
}

// firstHasRange peeks at the first array element to see whether it carries
// a "range" key, distinguishing DocumentSymbol from SymbolInformation
// payloads without relying on unmarshal silently zero-valuing mismatches.
func firstHasRange(raw json.RawMessage) (json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	var probe struct {
		Range *json.RawMessage `json:"range"`
	}
	if err := json.Unmarshal(items[0], &probe); err != nil {
		return nil, false
	}
	return items[0], probe.Range != nil
}

// Definition resolves go-to-definition at a position (spec §4.9 `show`,
// `declaration`).
func (c *Client) Definition(ctx context.Context, uri string, line, character uint32) ([]protocol.Location, error) {
	return c.locationRequest(ctx, "textDocument/definition", uri, line, character)
}

// Declaration resolves go-to-declaration, distinct from Definition in
// languages like C that separate the two (spec §4.9 `declaration`).
func (c *Client) Declaration(ctx context.Context, uri string, line, character uint32) ([]protocol.Location, error) {
	return c.locationRequest(ctx, "textDocument/declaration", uri, line, character)
}

// TypeDefinition resolves the type of the symbol at a position.
func (c *Client) TypeDefinition(ctx context.Context, uri string, line, character uint32) ([]protocol.Location, error) {
	return c.locationRequest(ctx, "textDocument/typeDefinition", uri, line, character)
}

// Implementation resolves implementations of an interface/abstract symbol
// (spec §4.9 `implementations`).
func (c *Client) Implementation(ctx context.Context, uri string, line, character uint32) ([]protocol.Location, error) {
	return c.locationRequest(ctx, "textDocument/implementation", uri, line, character)
}

func (c *Client) locationRequest(ctx context.Context, method, uri string, line, character uint32) ([]protocol.Location, error) {
	var raw json.RawMessage
	params := protocol.DefinitionParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: line, Character: character},
	}
	if err := c.SendRequest(ctx, method, params, &raw, 30*time.Second); err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// decodeLocations normalizes the three shapes a definition-family response
// can take: null, Location | Location[], or LocationLink[].
func decodeLocations(raw json.RawMessage) ([]protocol.Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var single protocol.Location
	if err := json.Unmarshal(raw, &single); err == nil && single.Uri != "" {
		return []protocol.Location{single}, nil
	}

	var locs []protocol.Location
	if err := json.Unmarshal(raw, &locs); err == nil && len(locs) > 0 {
		allEmpty := true
		for _, l := range locs {
			if l.Uri != "" {
				allEmpty = false
				break
			}
		}
		if !allEmpty {
			return locs, nil
		}
	}

	var links []protocol.LocationLink
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, fmt.Errorf("lsp: unrecognized location response: %w", err)
	}
	out := make([]protocol.Location, len(links))
	for i, l := range links {
		out[i] = protocol.Location{Uri: l.TargetUri, Range: l.TargetSelectionRange}
	}
	return out, nil
}

// References finds all references to the symbol at a position (spec §4.9
// `references`).
func (c *Client) References(ctx context.Context, uri string, line, character uint32, includeDeclaration bool) ([]protocol.Location, error) {
	var result []protocol.Location
	params := protocol.ReferenceParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: line, Character: character},
		Context:      protocol.ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	err := c.SendRequest(ctx, "textDocument/references", params, &result, 60*time.Second)
	return result, err
}

// Hover fetches hover text at a position (spec §4.9 `show`).
func (c *Client) Hover(ctx context.Context, uri string, line, character uint32) (*protocol.Hover, error) {
	var raw json.RawMessage
	params := protocol.HoverParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: line, Character: character},
	}
	if err := c.SendRequest(ctx, "textDocument/hover", params, &raw, 15*time.Second); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var result protocol.Hover
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("lsp: unmarshal hover: %w", err)
	}
	return &result, nil
}

// PrepareCallHierarchy resolves the call-hierarchy root item(s) at a
// position, the entry point for `calls` (spec §4.9).
func (c *Client) PrepareCallHierarchy(ctx context.Context, uri string, line, character uint32) ([]protocol.CallHierarchyItem, error) {
	var result []protocol.CallHierarchyItem
	params := protocol.CallHierarchyPrepareParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: line, Character: character},
	}
	err := c.SendRequest(ctx, "textDocument/prepareCallHierarchy", params, &result, 30*time.Second)
	return result, err
}

// IncomingCalls returns callers of a call-hierarchy item.
func (c *Client) IncomingCalls(ctx context.Context, item protocol.CallHierarchyItem) ([]protocol.CallHierarchyIncomingCall, error) {
	var result []protocol.CallHierarchyIncomingCall
	err := c.SendRequest(ctx, "callHierarchy/incomingCalls", protocol.CallHierarchyIncomingCallsParams{Item: item}, &result, 30*time.Second)
	return result, err
}

// OutgoingCalls returns callees of a call-hierarchy item.
func (c *Client) OutgoingCalls(ctx context.Context, item protocol.CallHierarchyItem) ([]protocol.CallHierarchyOutgoingCall, error) {
	var result []protocol.CallHierarchyOutgoingCall
	err := c.SendRequest(ctx, "callHierarchy/outgoingCalls", protocol.CallHierarchyOutgoingCallsParams{Item: item}, &result, 30*time.Second)
	return result, err
}

// PrepareTypeHierarchy resolves the type-hierarchy root item(s) at a
// position, the entry point for `subtypes`/`supertypes` (spec §4.9).
func (c *Client) PrepareTypeHierarchy(ctx context.Context, uri string, line, character uint32) ([]protocol.TypeHierarchyItem, error) {
	var result []protocol.TypeHierarchyItem
	params := protocol.TypeHierarchyPrepareParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: line, Character: character},
	}
	err := c.SendRequest(ctx, "textDocument/prepareTypeHierarchy", params, &result, 30*time.Second)
	return result, err
}

// Supertypes returns the direct supertypes of a type-hierarchy item.
func (c *Client) Supertypes(ctx context.Context, item protocol.TypeHierarchyItem) ([]protocol.TypeHierarchyItem, error) {
	var result []protocol.TypeHierarchyItem
	err := c.SendRequest(ctx, "typeHierarchy/supertypes", protocol.TypeHierarchySupertypesParams{Item: item}, &result, 30*time.Second)
	return result, err
}

// Subtypes returns the direct subtypes of a type-hierarchy item.
func (c *Client) Subtypes(ctx context.Context, item protocol.TypeHierarchyItem) ([]protocol.TypeHierarchyItem, error) {
	var result []protocol.TypeHierarchyItem
	err := c.SendRequest(ctx, "typeHierarchy/subtypes", protocol.TypeHierarchySubtypesParams{Item: item}, &result, 30*time.Second)
	return result, err
}

// PrepareRename asks the server whether the symbol at a position can be
// renamed. The `rename` handler does not call it before Rename (spec §4.9
// `rename`).
func (c *Client) PrepareRename(ctx context.Context, uri string, line, character uint32) (*protocol.PrepareRenameResult, error) {
	var result protocol.PrepareRenameResult
	params := protocol.PrepareRenameParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: line, Character: character},
	}
	err := c.SendRequest(ctx, "textDocument/prepareRename", params, &result, 15*time.Second)
	return &result, err
}

// Rename requests a WorkspaceEdit for renaming the symbol at a position
// (spec §4.9 `rename`, applied via the daemon's edit-application logic in
// §4.10).
func (c *Client) Rename(ctx context.Context, uri string, line, character uint32, newName string) (*protocol.WorkspaceEdit, error) {
	var result protocol.WorkspaceEdit
	params := protocol.RenameParams{
		TextDocument: protocol.TextDocumentIdentifier{Uri: protocol.DocumentUri(uri)},
		Position:     protocol.Position{Line: line, Character: character},
		NewName:      newName,
	}
	err := c.SendRequest(ctx, "textDocument/rename", params, &result, 30*time.Second)
	return &result, err
}

// WillRenameFiles asks the server to compute a WorkspaceEdit (e.g. import
// fixups) for a pending file rename before it happens on disk (spec §4.9
// `mv`).
func (c *Client) WillRenameFiles(ctx context.Context, oldURI, newURI string) (*protocol.WorkspaceEdit, error) {
	var result protocol.WorkspaceEdit
	params := protocol.RenameFilesParams{
		Files: []protocol.FileRename{{OldUri: oldURI, NewUri: newURI}},
	}
	err := c.SendRequest(ctx, "workspace/willRenameFiles", params, &result, 30*time.Second)
	return &result, err
}

// DidRenameFiles notifies the server a rename already happened on disk.
func (c *Client) DidRenameFiles(ctx context.Context, oldURI, newURI string) error {
	params := protocol.RenameFilesParams{
		Files: []protocol.FileRename{{OldUri: oldURI, NewUri: newURI}},
	}
	return c.SendNotification(ctx, "workspace/didRenameFiles", params)
}

// ExecuteCommand forwards a workspace/executeCommand request. The
// raw-lsp-request handler goes through RawRequest instead (spec §4.9
// `raw-lsp-request`).
func (c *Client) ExecuteCommand(ctx context.Context, command string, args []any) (json.RawMessage, error) {
	var raw json.RawMessage
	params := protocol.ExecuteCommandParams{Command: command, Arguments: args}
	err := c.SendRequest(ctx, "workspace/executeCommand", params, &raw, 60*time.Second)
	return raw, err
}

// RawRequest sends an arbitrary method with a raw JSON params blob,
// returning the raw JSON result, for the `raw-lsp-request` handler (spec
// §4.9) which intentionally bypasses typed decoding.
func (c *Client) RawRequest(ctx context.Context, method string, params json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	var raw json.RawMessage
	var p any
	if len(params) > 0 {
		p = params
	}
	err := c.SendRequest(ctx, method, p, &raw, timeout)
	return raw, err
}
