package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/logger"
	"github.com/lspd/lspd/model"
	"github.com/lspd/lspd/pathutil"
)

// MoveFileParams is the `move-file` request (spec §6).
type MoveFileParams struct {
	OldPath       string `json:"old_path"`
	NewPath       string `json:"new_path"`
	WorkspaceRoot string `json:"workspace_root"`
}

// MoveFileResult is the `move-file` response (spec §6).
type MoveFileResult struct {
	FilesChanged   []string `json:"files_changed"`
	ImportsUpdated bool     `json:"imports_updated"`
}

// MoveFile implements spec §4.9 `mv`: pre-check, capability check,
// pre-index every other source file, workspace/willRenameFiles, apply the
// edit, and a disk-rename fallback if the edit didn't itself move the
// file.
func MoveFile(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p MoveFileParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("move-file: invalid params: %v", err)}
	}
	if p.OldPath == "" || p.NewPath == "" || p.WorkspaceRoot == "" {
		return nil, &daemon.ValidationError{Message: "move-file: old_path, new_path, and workspace_root are required"}
	}
	if _, err := os.Stat(p.OldPath); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("move-file: source %s does not exist", p.OldPath)}
	}
	if _, err := os.Stat(p.NewPath); err == nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("move-file: destination %s already exists", p.NewPath)}
	}

	ws, err := workspaceForPath(ctx, hctx, p.OldPath, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	client := ws.Client()
	if client == nil {
		return nil, fmt.Errorf("move-file: workspace for %s has no running client", p.OldPath)
	}
	if !client.Supports("willRename") {
		return nil, fmt.Errorf("move-file: %s does not advertise workspace/willRenameFiles", ws.ServerName)
	}

	// Pre-index every other source file so the server has resolved
	// cross-references before computing the rename edit (spec §4.9 `mv`).
	if _, err := collectWorkspaceSymbols(ctx, hctx, p.WorkspaceRoot); err != nil {
		logger.Warn(fmt.Sprintf("move-file: pre-index %s failed: %v", p.WorkspaceRoot, err))
	}

	oldURI, err := pathutil.PathToURI(p.OldPath)
	if err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("move-file: invalid old_path: %v", err)}
	}
	newURI, err := pathutil.PathToURI(p.NewPath)
	if err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("move-file: invalid new_path: %v", err)}
	}

	edit, err := client.WillRenameFiles(ctx, oldURI, newURI)
	if err != nil {
		return nil, asMethodNotSupported(err, "workspace/willRenameFiles", ws.ServerName)
	}

	filesChanged, err := daemon.ApplyWorkspaceEdit(edit)
	if err != nil {
		return nil, err
	}

	renamedOnDisk := false
	for _, f := range filesChanged {
		if f == p.NewPath {
			renamedOnDisk = true
		}
	}
	if !renamedOnDisk {
		if err := os.Rename(p.OldPath, p.NewPath); err != nil {
			return nil, fmt.Errorf("move-file: rename %s to %s: %w", p.OldPath, p.NewPath, err)
		}
		filesChanged = append(filesChanged, p.NewPath)
	}

	if err := client.DidRenameFiles(ctx, oldURI, newURI); err != nil {
		logger.Warn(fmt.Sprintf("move-file: didRenameFiles notify failed: %v", err))
	}

	changes := []model.FileChange{
		{Path: p.OldPath, Type: model.FileDeleted},
		{Path: p.NewPath, Type: model.FileCreated},
	}
	if err := ws.NotifyFilesChanged(ctx, changes); err != nil {
		logger.Warn(fmt.Sprintf("move-file: notify watched files failed: %v", err))
	}

	return &MoveFileResult{
		FilesChanged:   dedupPreserveOrder(filesChanged),
		ImportsUpdated: len(filesChanged) > 1,
	}, nil
}

func dedupPreserveOrder(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
