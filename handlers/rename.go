package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/logger"
	"github.com/lspd/lspd/model"
)

// RenameParams is the `rename` request (spec §6).
type RenameParams struct {
	Path          string `json:"path"`
	WorkspaceRoot string `json:"workspace_root"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	NewName       string `json:"new_name"`
}

// RenameResult is the `rename` response (spec §6).
type RenameResult struct {
	FilesChanged []string `json:"files_changed"`
}

// Rename implements spec §4.9 `rename`: resolve, send
// textDocument/rename, apply the returned edit to disk, close mirrored
// documents for touched files, notify via
// workspace/didChangeWatchedFiles, then reopen.
func Rename(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p RenameParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("rename: invalid params: %v", err)}
	}
	if p.Path == "" || p.WorkspaceRoot == "" || p.NewName == "" {
		return nil, &daemon.ValidationError{Message: "rename: path, workspace_root, and new_name are required"}
	}

	ws, err := workspaceForPath(ctx, hctx, p.Path, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	client := ws.Client()
	if client == nil {
		return nil, fmt.Errorf("rename: workspace for %s has no running client", p.Path)
	}

	uri, _, err := ws.EnsureDocumentOpen(ctx, p.Path)
	if err != nil {
		return nil, err
	}

	edit, err := client.Rename(ctx, uri, toZeroBased(p.Line), uint32(p.Column), p.NewName)
	if err != nil {
		return nil, daemon2MethodNotSupported(err, "textDocument/rename", ws.ServerName)
	}

	filesChanged, err := daemon.ApplyWorkspaceEdit(edit)
	if err != nil {
		return nil, err
	}

	for _, f := range filesChanged {
		_ = ws.CloseDocument(ctx, f)
	}

	changes := make([]model.FileChange, len(filesChanged))
	for i, f := range filesChanged {
		changes[i] = model.FileChange{Path: f, Type: model.FileChanged}
	}
	if err := ws.NotifyFilesChanged(ctx, changes); err != nil {
		return nil, err
	}

	for _, f := range filesChanged {
		if _, _, err := ws.EnsureDocumentOpen(ctx, f); err != nil {
			logger.Warn(fmt.Sprintf("rename: reopen %s after edit: %v", f, err))
		}
	}

	return &RenameResult{FilesChanged: filesChanged}, nil
}
