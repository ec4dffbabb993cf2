package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lspd/lspd/daemon"
)

// RawLSPRequestParams is the `raw-lsp-request` request (spec §6): an
// escape hatch for a request type no dedicated handler covers.
type RawLSPRequestParams struct {
	WorkspaceRoot string          `json:"workspace_root"`
	Method        string          `json:"method"`
	Params        json.RawMessage `json:"params"`
	Language      string          `json:"language"`
}

const rawRequestTimeout = 30 * time.Second

// RawLSPRequest implements spec §4.9 `raw-lsp-request`: a thin
// passthrough to the named workspace's client.
func RawLSPRequest(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p RawLSPRequestParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("raw-lsp-request: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" || p.Method == "" || p.Language == "" {
		return nil, &daemon.ValidationError{Message: "raw-lsp-request: workspace_root, method, and language are required"}
	}

	ws, err := hctx.Session.GetOrCreateWorkspaceForLanguage(ctx, p.Language, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	client := ws.Client()
	if client == nil {
		return nil, fmt.Errorf("raw-lsp-request: workspace %s/%s has no running client", p.WorkspaceRoot, p.Language)
	}

	result, err := client.RawRequest(ctx, p.Method, p.Params, rawRequestTimeout)
	if err != nil {
		return nil, asMethodNotSupported(err, p.Method, ws.ServerName)
	}
	return json.RawMessage(result), nil
}
