package lsp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/lspd/lspd/logger"
)

// clientHandler answers the requests and notifications a language server
// sends back to its client: progress, configuration pulls, capability
// registration, and diagnostics/log passthrough (spec §4.2).
type clientHandler struct {
	client *Client
}

func (h *clientHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	switch req.Method {
	case "$/progress":
		h.handleProgress(req)
		return

	case "window/workDoneProgress/create":
		if req.Params != nil {
			var params protocol.WorkDoneProgressCreateParams
			if err := json.Unmarshal(*req.Params, &params); err == nil {
				h.client.progress.RegisterToken(params.Token)
			}
		}
		if err := conn.Reply(ctx, req.ID, map[string]any{}); err != nil {
			logger.Debug(fmt.Sprintf("reply to workDoneProgress/create failed: %v", err))
		}
		return

	case "experimental/serverStatus":
		// Some servers (e.g. rust-analyzer) report indexing health outside
		// the standard $/progress stream; treat it as another progress
		// source so readiness waiters see it too.
		if req.Params != nil {
			h.client.progress.UpdateServerStatus(*req.Params)
		}
		if !req.Notif {
			_ = conn.Reply(ctx, req.ID, map[string]any{})
		}
		return

	case "language/status":
		// bsl-language-server's ServiceReady announcement (spec §4.2): a
		// distinct event from indexing quiescence, gating semantic requests.
		if req.Params != nil {
			var status struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(*req.Params, &status); err == nil && status.Type == "ServiceReady" {
				h.client.markServiceReady()
			}
		}
		if !req.Notif {
			_ = conn.Reply(ctx, req.ID, map[string]any{})
		}
		return

	case "textDocument/publishDiagnostics":
		logDiagnostics(req.Params)
		return

	case "window/showMessage":
		logAny("server message", req.Params)
		return

	case "window/logMessage":
		logAny("server log", req.Params)
		return

	case "client/registerCapability", "client/unregisterCapability":
		if err := conn.Reply(ctx, req.ID, map[string]any{}); err != nil {
			logger.Debug(fmt.Sprintf("reply to %s failed: %v", req.Method, err))
		}
		return

	case "workspace/configuration":
		// The daemon carries no per-server settings surface (spec §1
		// non-goal); answer with one empty object per requested item so
		// servers that gate behavior on a present/absent array don't stall.
		var params protocol.ConfigurationParams
		n := 1
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &params); err == nil {
				n = len(params.Items)
				if n == 0 {
					n = 1
				}
			}
		}
		items := make([]any, n)
		for i := range items {
			items[i] = map[string]any{}
		}
		if err := conn.Reply(ctx, req.ID, items); err != nil {
			logger.Debug(fmt.Sprintf("reply to workspace/configuration failed: %v", err))
		}
		return

	case "workspace/applyEdit":
		// The daemon is the one issuing renames/moves; it does not expect
		// the language server to push edits back. Acknowledge so the
		// server's UI layer (if any) does not hang.
		if err := conn.Reply(ctx, req.ID, map[string]any{"applied": true}); err != nil {
			logger.Debug(fmt.Sprintf("reply to workspace/applyEdit failed: %v", err))
		}
		return

	default:
		if req.Notif {
			logUnhandledNotification(h.client.name, req.Method, req.Params)
			return
		}

		logger.Error(fmt.Sprintf("%s: unhandled request %s", h.client.name, req.Method), nil)
		err := &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
		if replyErr := conn.ReplyWithError(ctx, req.ID, err); replyErr != nil {
			logger.Error("reply with error failed", replyErr)
		}
	}
}

func (h *clientHandler) handleProgress(req *jsonrpc2.Request) {
	if req.Params == nil {
		return
	}
	var params protocol.ProgressParams
	if err := json.Unmarshal(*req.Params, &params); err != nil {
		logger.Debug(fmt.Sprintf("%s: bad $/progress params: %v", h.client.name, err))
		return
	}
	h.client.progress.Update(params)
}

func logDiagnostics(raw *json.RawMessage) {
	if raw == nil {
		return
	}
	var params any
	if err := json.Unmarshal(*raw, &params); err == nil {
		logger.Debug(fmt.Sprintf("diagnostics: %+v", params))
	}
}

func logAny(label string, raw *json.RawMessage) {
	if raw == nil {
		return
	}
	var params any
	if err := json.Unmarshal(*raw, &params); err == nil {
		logger.Info(fmt.Sprintf("%s: %+v", label, params))
	}
}
