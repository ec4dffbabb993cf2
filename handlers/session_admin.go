package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lspd/lspd/daemon"
)

// WorkspaceRootParams covers restart-workspace and remove-workspace (spec
// §6: `{workspace_root}`).
type WorkspaceRootParams struct {
	WorkspaceRoot string `json:"workspace_root"`
}

// WorkspaceCountResult reports how many servers were stopped/started (spec
// §6 `{servers_started/stopped}`).
type WorkspaceCountResult struct {
	ServersStopped int `json:"servers_stopped"`
	ServersStarted int `json:"servers_started,omitempty"`
}

// RestartWorkspace implements spec §4.9 `restart-workspace`.
func RestartWorkspace(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p WorkspaceRootParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("restart-workspace: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" {
		return nil, &daemon.ValidationError{Message: "restart-workspace: workspace_root is required"}
	}
	root := filepath.Clean(p.WorkspaceRoot)
	stopped := 0
	for _, info := range hctx.Session.Describe() {
		if info.Root == root {
			stopped++
		}
	}
	n := hctx.Session.RestartWorkspace(ctx, p.WorkspaceRoot)
	return &WorkspaceCountResult{ServersStopped: stopped, ServersStarted: n}, nil
}

// RemoveWorkspace implements spec §4.9 `remove-workspace`.
func RemoveWorkspace(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p WorkspaceRootParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("remove-workspace: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" {
		return nil, &daemon.ValidationError{Message: "remove-workspace: workspace_root is required"}
	}
	n := hctx.Session.RemoveWorkspace(ctx, p.WorkspaceRoot)
	return &WorkspaceCountResult{ServersStopped: n}, nil
}

// CacheStats summarizes one persistent cache for describe-session.
type CacheStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// DescribeSessionResult is the `describe-session` response (spec §6
// "workspace list, cache stats, daemon pid").
type DescribeSessionResult struct {
	Workspaces  []sessionWorkspaceInfo `json:"workspaces"`
	SymbolCache CacheStats             `json:"symbol_cache"`
	HoverCache  CacheStats             `json:"hover_cache"`
	Pid         int                    `json:"pid"`
	UptimeSec   float64                `json:"uptime_seconds"`
}

type sessionWorkspaceInfo struct {
	Root       string `json:"root"`
	ServerName string `json:"server_name"`
	LanguageID string `json:"language_id"`
	Status     string `json:"status"`
}

// DescribeSession implements spec §4.9 `describe-session`.
func DescribeSession(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	infos := hctx.Session.Describe()
	workspaces := make([]sessionWorkspaceInfo, len(infos))
	for i, w := range infos {
		workspaces[i] = sessionWorkspaceInfo{
			Root:       w.Root,
			ServerName: w.ServerName,
			LanguageID: w.LanguageID,
			Status:     w.Status,
		}
	}

	return &DescribeSessionResult{
		Workspaces:  workspaces,
		SymbolCache: CacheStats{Entries: hctx.SymbolCache.Len(), Bytes: hctx.SymbolCache.CurrentBytes()},
		HoverCache:  CacheStats{Entries: hctx.HoverCache.Len(), Bytes: hctx.HoverCache.CurrentBytes()},
		Pid:         os.Getpid(),
		UptimeSec:   time.Since(hctx.StartedAt).Seconds(),
	}, nil
}

// ShutdownResult acknowledges a shutdown request (spec §6
// `{status:"shutting_down"}`).
type ShutdownResult struct {
	Status string `json:"status"`
}

// Shutdown implements spec §4.9 `shutdown`: acknowledges immediately and
// asynchronously triggers Serve's graceful shutdown sequence, since the
// response must be written back over the connection that is requesting it.
func Shutdown(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	if hctx.Shutdown != nil {
		go hctx.Shutdown()
	}
	return &ShutdownResult{Status: "shutting_down"}, nil
}
