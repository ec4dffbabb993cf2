// Package model holds the wire-independent data model shared by every
// subsystem: positions, open documents, symbol records, and cache entries,
// as laid out in spec §3.
package model

import "time"

// Position is zero-based at the wire (matching LSP); handlers convert to
// one-based line numbers at the client boundary, never in between.
type Position struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

// Range is a half-open [Start, End) span of Positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// OpenDocument is the daemon's mirror of one LSP-visible document.
type OpenDocument struct {
	URI        string
	Version    int32
	Content    string
	LanguageID string
}

// Symbol is one entry produced by the symbol index and consumed by the
// resolver (spec §3 "Symbol record").
type Symbol struct {
	Name            string `json:"name"`
	Kind            string `json:"kind"`
	Path            string `json:"path"` // workspace-relative
	Line            int    `json:"line"` // 1-based
	Column          int    `json:"column"`
	Container       string `json:"container,omitempty"`
	Detail          string `json:"detail,omitempty"`
	RangeStartLine  int    `json:"range_start_line"`
	RangeEndLine    int    `json:"range_end_line"`
}

// Identity returns the (path, line, column, name) tuple that uniquely
// identifies a symbol record, per spec §3.
func (s Symbol) Identity() (string, int, int, string) {
	return s.Path, s.Line, s.Column, s.Name
}

// ResolvedSymbol is produced only when resolution is unambiguous (spec §4.7).
type ResolvedSymbol struct {
	Path           string `json:"path"`
	Line           int    `json:"line"`
	Column         int    `json:"column"`
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	Container      string `json:"container,omitempty"`
	RangeStartLine int    `json:"range_start_line"`
	RangeEndLine   int    `json:"range_end_line"`
}

// CacheEntry describes the record kept behind every cache key (spec §3,
// §4.5). Package cache persists its own equivalent record type, not this
// struct.
type CacheEntry struct {
	Value      []byte
	AccessTime time.Time
	SizeBytes  int
}

// CallHierarchyItem mirrors the LSP call-hierarchy item structure (spec
// §3). The `calls` handler builds its tree from protocol.CallHierarchyItem
// directly, not from this type.
type CallHierarchyItem struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	URI            string `json:"uri"`
	Range          Range  `json:"range"`
	SelectionRange Range  `json:"selection_range"`
	Detail         string `json:"detail,omitempty"`
}

// FileChangeType mirrors the LSP FileChangeType enum used by
// workspace/didChangeWatchedFiles (spec §4.3).
type FileChangeType int

const (
	FileCreated FileChangeType = 1
	FileChanged FileChangeType = 2
	FileDeleted FileChangeType = 3
)

// FileChange pairs a path with its change kind.
type FileChange struct {
	Path string
	Type FileChangeType
}
