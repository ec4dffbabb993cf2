package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lspd/lspd/daemon"
)

// FilesParams is the `files` request (spec §4.9, §6).
type FilesParams struct {
	WorkspaceRoot   string   `json:"workspace_root"`
	Subpath         string   `json:"subpath"`
	ExcludePatterns []string `json:"exclude_patterns"`
	IncludePatterns []string `json:"include_patterns"`
}

// FileEntry is one node in the `files` directory tree.
type FileEntry struct {
	Path      string         `json:"path"`
	IsDir     bool           `json:"is_dir"`
	Size      int64          `json:"size,omitempty"`
	Lines     int            `json:"lines,omitempty"`
	KindCount map[string]int `json:"kind_count,omitempty"`
	Children  []FileEntry    `json:"children,omitempty"`
}

// defaultFileNoiseDirs mirrors symbolindex's discovery exclusion set; the
// `files` handler applies the same default-off noise filter unless
// include_patterns names a path inside one (spec §4.9 `files`).
var defaultFileNoiseDirs = map[string]bool{
	".git": true, "__pycache__": true, "node_modules": true, ".venv": true,
	"venv": true, "build": true, "dist": true, "target": true, ".tox": true,
	".eggs": true, "vendor": true,
}

// Files implements spec §4.9 `files`.
func Files(ctx context.Context, hctx *daemon.HandlerContext, raw json.RawMessage) (any, error) {
	var p FilesParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &daemon.ValidationError{Message: fmt.Sprintf("files: invalid params: %v", err)}
	}
	if p.WorkspaceRoot == "" {
		return nil, &daemon.ValidationError{Message: "files: workspace_root is required"}
	}

	start := p.WorkspaceRoot
	if p.Subpath != "" {
		start = filepath.Join(p.WorkspaceRoot, p.Subpath)
	}

	symbolsByPath, err := symbolCountsByPath(ctx, hctx, p.WorkspaceRoot)
	if err != nil {
		return nil, err
	}

	root, err := buildFileTree(start, p.WorkspaceRoot, p.ExcludePatterns, p.IncludePatterns, symbolsByPath)
	if err != nil {
		return nil, fmt.Errorf("files: walk %s: %w", start, err)
	}
	return root, nil
}

func symbolCountsByPath(ctx context.Context, hctx *daemon.HandlerContext, root string) (map[string]map[string]int, error) {
	symbols, err := collectWorkspaceSymbols(ctx, hctx, root)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]map[string]int)
	for _, s := range symbols {
		m, ok := counts[s.Path]
		if !ok {
			m = make(map[string]int)
			counts[s.Path] = m
		}
		m[s.Kind]++
	}
	return counts, nil
}

func buildFileTree(dir, root string, excludePatterns, includePatterns []string, symbolCounts map[string]map[string]int) (*FileEntry, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		rel = dir
	}
	entry := &FileEntry{Path: rel, IsDir: true}

	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		childPath := filepath.Join(dir, item.Name())
		childRel, _ := filepath.Rel(root, childPath)

		if item.IsDir() {
			if fileExcluded(item.Name(), childRel, excludePatterns, includePatterns) {
				continue
			}
			child, err := buildFileTree(childPath, root, excludePatterns, includePatterns, symbolCounts)
			if err != nil {
				return nil, err
			}
			entry.Children = append(entry.Children, *child)
			continue
		}

		if fileExcluded(item.Name(), childRel, excludePatterns, includePatterns) {
			continue
		}
		info, err := item.Info()
		if err != nil {
			continue
		}
		fe := FileEntry{Path: childRel, Size: info.Size()}
		if counts, ok := symbolCounts[childRel]; ok {
			fe.KindCount = counts
			fe.Lines = countLines(childPath)
		}
		entry.Children = append(entry.Children, fe)
	}
	return entry, nil
}

func fileExcluded(name, relPath string, excludePatterns, includePatterns []string) bool {
	for _, inc := range includePatterns {
		if ok, _ := doublestar.Match(inc, relPath); ok {
			return false
		}
	}
	if defaultFileNoiseDirs[name] || strings.HasPrefix(name, ".") {
		return true
	}
	for _, ex := range excludePatterns {
		if ok, _ := doublestar.Match(ex, relPath); ok {
			return true
		}
	}
	return false
}

func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	if len(data) == 0 {
		return 0
	}
	return strings.Count(string(data), "\n") + 1
}
