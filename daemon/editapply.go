package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/lspd/lspd/logger"
	"github.com/lspd/lspd/pathutil"
)

// ApplyWorkspaceEdit applies a protocol.WorkspaceEdit to the filesystem
// (spec §4.10). Both shapes (`changes` and `documentChanges`) are handled;
// when both are present both are applied. Edits are re-decoded from the raw
// wire JSON rather than read off the typed protocol struct directly, so
// this logic doesn't depend on exactly how the generated union type for
// `documentChanges` represents its four variants (spec §9 "discriminate on
// shape; do not reach for a single dynamic container" guided the decoder,
// not the caller-facing API).
//
// filesChanged is returned in LSP edit order, deduplicated preserving first
// occurrence (spec §9's explicit note on this invariant).
func ApplyWorkspaceEdit(edit *protocol.WorkspaceEdit) (filesChanged []string, err error) {
	if edit == nil {
		return nil, nil
	}

	raw, err := json.Marshal(edit)
	if err != nil {
		return nil, fmt.Errorf("daemon: marshal workspace edit: %w", err)
	}

	var wire wireWorkspaceEdit
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("daemon: decode workspace edit: %w", err)
	}
	if len(wire.Changes) == 0 && len(wire.DocumentChanges) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			filesChanged = append(filesChanged, path)
		}
	}

	// `changes` is a map so spec leaves iteration order implementation
	// defined; sort by path for a deterministic files_changed list.
	uris := make([]string, 0, len(wire.Changes))
	for uri := range wire.Changes {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	for _, uri := range uris {
		path := pathutil.ToFilePath(uri)
		if err := applyTextEdits(path, wire.Changes[uri]); err != nil {
			return filesChanged, err
		}
		add(path)
	}

	for _, dc := range wire.DocumentChanges {
		switch {
		case dc.Kind == "create":
			path := pathutil.ToFilePath(dc.URI)
			if err := createFile(path); err != nil {
				return filesChanged, err
			}
			add(path)

		case dc.Kind == "rename":
			oldPath := pathutil.ToFilePath(dc.OldURI)
			newPath := pathutil.ToFilePath(dc.NewURI)
			if err := renameFile(oldPath, newPath); err != nil {
				return filesChanged, err
			}
			add(oldPath)
			add(newPath)

		case dc.Kind == "delete":
			path := pathutil.ToFilePath(dc.URI)
			if err := deleteFile(path); err != nil {
				return filesChanged, err
			}
			add(path)

		case dc.TextDocument.URI != "":
			path := pathutil.ToFilePath(dc.TextDocument.URI)
			if err := applyTextEdits(path, dc.Edits); err != nil {
				return filesChanged, err
			}
			add(path)
		}
	}

	return filesChanged, nil
}

// wireWorkspaceEdit mirrors the LSP 3.17 WorkspaceEdit JSON shape exactly
// (spec §4.10).
type wireWorkspaceEdit struct {
	Changes         map[string][]wireTextEdit `json:"changes,omitempty"`
	DocumentChanges []wireDocumentChange      `json:"documentChanges,omitempty"`
}

// wireDocumentChange unifies the four documentChanges variants
// (TextDocumentEdit | CreateFile | RenameFile | DeleteFile); Kind is empty
// for a TextDocumentEdit, which instead carries TextDocument/Edits.
type wireDocumentChange struct {
	Kind string `json:"kind,omitempty"` // "create" | "rename" | "delete"

	// CreateFile / DeleteFile
	URI string `json:"uri,omitempty"`

	// RenameFile
	OldURI string `json:"oldUri,omitempty"`
	NewURI string `json:"newUri,omitempty"`

	// TextDocumentEdit
	TextDocument struct {
		URI string `json:"uri"`
	} `json:"textDocument,omitempty"`
	Edits []wireTextEdit `json:"edits,omitempty"`
}

type wireTextEdit struct {
	Range   wireRange `json:"range"`
	NewText string    `json:"newText"`
}

type wireRange struct {
	Start wirePosition `json:"start"`
	End   wirePosition `json:"end"`
}

type wirePosition struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// applyTextEdits applies edits to the file at path (spec §4.10 "Text edits
// per file"). Lines keep their original trailing newline; if the last line
// lacks one, a newline is appended for range math and stripped again after
// applying unless the edits themselves introduced content past it.
func applyTextEdits(path string, edits []wireTextEdit) error {
	if len(edits) == 0 {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("daemon: read %s: %w", path, err)
	}

	text := string(content)
	normalized := !strings.HasSuffix(text, "\n")
	if normalized {
		text += "\n"
	}

	lines := splitKeepEnds(text)

	sorted := append([]wireTextEdit{}, edits...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Range.Start.Line != sorted[j].Range.Start.Line {
			return sorted[i].Range.Start.Line > sorted[j].Range.Start.Line
		}
		return sorted[i].Range.Start.Character > sorted[j].Range.Start.Character
	})

	for _, e := range sorted {
		lines, err = applyOneEdit(lines, e)
		if err != nil {
			return fmt.Errorf("daemon: apply edit to %s: %w", path, err)
		}
	}

	result := strings.Join(lines, "")
	if normalized && strings.HasSuffix(result, "\n") {
		result = result[:len(result)-1]
	}

	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	return os.WriteFile(path, []byte(result), mode)
}

// splitKeepEnds splits text into lines, each retaining its trailing "\n" so
// line-oriented range math can index directly into this slice.
func splitKeepEnds(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func applyOneEdit(lines []string, e wireTextEdit) ([]string, error) {
	startLine, startChar := e.Range.Start.Line, e.Range.Start.Character
	endLine, endChar := e.Range.End.Line, e.Range.End.Character

	if startLine < 0 || startLine >= len(lines) || endLine < 0 || endLine >= len(lines) {
		return nil, fmt.Errorf("range out of bounds (lines=%d, start=%d, end=%d)", len(lines), startLine, endLine)
	}

	if startLine == endLine {
		line := lines[startLine]
		if startChar > len(line) || endChar > len(line) || startChar > endChar {
			return nil, fmt.Errorf("character range out of bounds on line %d", startLine)
		}
		lines[startLine] = line[:startChar] + e.NewText + line[endChar:]
		return lines, nil
	}

	prefix := lines[startLine][:min(startChar, len(lines[startLine]))]
	suffix := lines[endLine][min(endChar, len(lines[endLine])):]
	replacement := prefix + e.NewText + suffix

	out := make([]string, 0, len(lines)-(endLine-startLine))
	out = append(out, lines[:startLine]...)
	out = append(out, replacement)
	out = append(out, lines[endLine+1:]...)
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func createFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("daemon: mkdir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("daemon: create %s: %w", path, err)
	}
	return f.Close()
}

func renameFile(oldPath, newPath string) error {
	if _, err := os.Stat(oldPath); err != nil {
		return nil
	}
	if _, err := os.Stat(newPath); err == nil {
		logger.Warn(fmt.Sprintf("daemon: rename target %s already exists, skipping", newPath))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o750); err != nil {
		return fmt.Errorf("daemon: mkdir for %s: %w", newPath, err)
	}
	return os.Rename(oldPath, newPath)
}

func deleteFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: delete %s: %w", path, err)
	}
	return nil
}
