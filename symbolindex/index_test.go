package symbolindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/lspd/lspd/cache"
)

func TestFlattenHierarchical(t *testing.T) {
	symbols := []protocol.DocumentSymbol{
		{
			Name:           "Outer",
			Kind:           5, // class
			Range:          protocol.Range{Start: protocol.Position{Line: 0}, End: protocol.Position{Line: 10}},
			SelectionRange: protocol.Range{Start: protocol.Position{Line: 0, Character: 6}},
			Children: []protocol.DocumentSymbol{
				{
					Name:           "method",
					Kind:           6,
					Range:          protocol.Range{Start: protocol.Position{Line: 2}, End: protocol.Position{Line: 4}},
					SelectionRange: protocol.Range{Start: protocol.Position{Line: 2, Character: 4}},
				},
			},
		},
	}

	out := Flatten(symbols, "pkg/file.go")
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Name != "Outer" || out[0].Container != "" {
		t.Fatalf("out[0] = %+v", out[0])
	}
	if out[1].Name != "method" || out[1].Container != "Outer" {
		t.Fatalf("out[1] = %+v", out[1])
	}
	if out[0].RangeStartLine != 1 || out[0].RangeEndLine != 11 {
		t.Fatalf("out[0] range = %d-%d", out[0].RangeStartLine, out[0].RangeEndLine)
	}
}

type fakeSource struct {
	symbols []protocol.DocumentSymbol
	opens   int
	closes  int
}

func (f *fakeSource) EnsureDocumentOpen(ctx context.Context, absPath string) (string, bool, error) {
	f.opens++
	return "file://" + absPath, false, nil
}

func (f *fakeSource) DocumentSymbols(ctx context.Context, uri string) ([]protocol.DocumentSymbol, error) {
	return f.symbols, nil
}

func (f *fakeSource) CloseDocument(ctx context.Context, absPath string) error {
	f.closes++
	return nil
}

func TestSymbolsCachesByContentHash(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.go")
	if err := os.WriteFile(file, []byte("package a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := cache.Open(filepath.Join(dir, "cache.db"), 1<<20)
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer c.Close()

	idx := New(c, dir)
	src := &fakeSource{symbols: []protocol.DocumentSymbol{{Name: "A", Kind: 5}}}

	ctx := context.Background()
	first, err := idx.Symbols(ctx, src, file)
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(first) != 1 || first[0].Name != "A" {
		t.Fatalf("first = %+v", first)
	}
	if src.opens != 1 || src.closes != 1 {
		t.Fatalf("opens=%d closes=%d", src.opens, src.closes)
	}

	// Second call with unchanged content must hit the cache, not the source.
	second, err := idx.Symbols(ctx, src, file)
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(second) != 1 || second[0].Name != "A" {
		t.Fatalf("second = %+v", second)
	}
	if src.opens != 1 {
		t.Fatalf("expected no additional open on cache hit, opens=%d", src.opens)
	}
}

func TestDiscoverFilesSkipsExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("main.go")
	mustWrite("vendor/dep.go")
	mustWrite(".git/hooks/pre-commit.go")

	resolve := func(ext string) (string, bool, bool) {
		if ext == "go" {
			return "go", false, true
		}
		return "", false, false
	}

	files, err := DiscoverFiles(dir, resolve)
	if err != nil {
		t.Fatalf("DiscoverFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("files = %v, want exactly main.go", files)
	}
}
