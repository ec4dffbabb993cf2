package resolver

import (
	"testing"

	"github.com/lspd/lspd/model"
)

func TestParseRefColonCounting(t *testing.T) {
	tests := []struct {
		input     string
		wantPath  string
		wantLine  int
		wantChain []string
		wantName  string
	}{
		{"save", "", 0, nil, "save"},
		{"a/b.go:save", "a/b.go", 0, nil, "save"},
		{"a/b.go:42:Foo.save", "a/b.go", 42, []string{"Foo"}, "save"},
		{"A.B.C.name", "", 0, []string{"A", "B", "C"}, "name"},
	}

	for _, tt := range tests {
		ref, err := ParseRef(tt.input)
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", tt.input, err)
		}
		if ref.Path != tt.wantPath || ref.Line != tt.wantLine || ref.Name != tt.wantName {
			t.Fatalf("ParseRef(%q) = %+v", tt.input, ref)
		}
		if len(ref.Container) != len(tt.wantChain) {
			t.Fatalf("ParseRef(%q).Container = %v, want %v", tt.input, ref.Container, tt.wantChain)
		}
	}
}

func TestNormalizeNameStripsDecorations(t *testing.T) {
	cases := map[string]string{
		"save(Foo)":        "save",
		"(*Type).Method":   "Method",
		"(Type).Method":    "Method",
		"plainName":        "plainName",
	}
	for input, want := range cases {
		if got := NormalizeName(input); got != want {
			t.Errorf("NormalizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestResolveUniqueMatch(t *testing.T) {
	symbols := []model.Symbol{
		{Name: "Foo", Kind: "function", Path: "a/b.go", Line: 10, Column: 1},
	}
	got, err := Resolve(symbols, "Foo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Path != "a/b.go" || got.Line != 10 {
		t.Fatalf("got = %+v", got)
	}
}

func TestResolveNotFound(t *testing.T) {
	_, err := Resolve(nil, "Missing")
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestResolveAmbiguousAndSuggestedRefRoundTrips(t *testing.T) {
	symbols := []model.Symbol{
		{Name: "Run", Kind: "method", Path: "pkg/a.go", Line: 5, Container: "Worker"},
		{Name: "Run", Kind: "method", Path: "pkg/b.go", Line: 9, Container: "Runner"},
		{Name: "Run", Kind: "method", Path: "pkg/c.go", Line: 14, Container: "Worker"},
	}

	_, err := Resolve(symbols, "Run")
	ambErr, ok := err.(*AmbiguityError)
	if !ok {
		t.Fatalf("expected AmbiguityError, got %v", err)
	}
	if len(ambErr.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(ambErr.Candidates))
	}

	for _, cand := range ambErr.Candidates {
		resolved, err := Resolve(symbols, cand.SuggestedRef)
		if err != nil {
			t.Fatalf("round trip Resolve(%q) failed: %v", cand.SuggestedRef, err)
		}
		if resolved.Path != cand.Symbol.Path || resolved.Line != cand.Symbol.Line {
			t.Fatalf("round trip Resolve(%q) = %+v, want %+v", cand.SuggestedRef, resolved, cand.Symbol)
		}
	}
}

func TestResolveAmbiguityCapsAtTenCandidates(t *testing.T) {
	var symbols []model.Symbol
	for i := 0; i < 15; i++ {
		symbols = append(symbols, model.Symbol{Name: "Dup", Kind: "function", Path: "f.go", Line: i + 1})
	}
	_, err := Resolve(symbols, "Dup")
	ambErr, ok := err.(*AmbiguityError)
	if !ok {
		t.Fatalf("expected AmbiguityError, got %v", err)
	}
	if len(ambErr.Candidates) != maxCandidates {
		t.Fatalf("candidates = %d, want %d", len(ambErr.Candidates), maxCandidates)
	}
}

func TestTypePreferenceKeepsOnlyTypeKinds(t *testing.T) {
	symbols := []model.Symbol{
		{Name: "Widget", Kind: "class", Path: "a.go", Line: 1},
		{Name: "Widget", Kind: "variable", Path: "b.go", Line: 2},
	}
	matches := Candidates(symbols, Ref{Name: "Widget"})
	if len(matches) != 1 || matches[0].Kind != "class" {
		t.Fatalf("matches = %+v, want only the class match", matches)
	}
}

func TestPathFilterBasenameAndGlob(t *testing.T) {
	symbols := []model.Symbol{
		{Name: "Foo", Kind: "function", Path: "pkg/sub/file.go", Line: 1},
		{Name: "Foo", Kind: "function", Path: "other/file.go", Line: 2},
	}

	byBasename := Candidates(symbols, Ref{Name: "Foo", Path: "file.go"})
	if len(byBasename) != 2 {
		t.Fatalf("basename filter matched %d, want 2", len(byBasename))
	}

	byGlob := Candidates(symbols, Ref{Name: "Foo", Path: "pkg/**/*.go"})
	if len(byGlob) != 1 || byGlob[0].Path != "pkg/sub/file.go" {
		t.Fatalf("glob filter = %+v", byGlob)
	}
}
