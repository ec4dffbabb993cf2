package pathutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tmp := t.TempDir()
	absFile := filepath.Join(tmp, "file.go")
	absURI, err := PathToURI(absFile)
	if err != nil {
		t.Fatalf("PathToURI failed: %v", err)
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already normalized file URI", absURI, absURI},
		{"http URI unchanged", "https://example.com/file", "https://example.com/file"},
		{"absolute path", absFile, absURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	paths := []string{
		filepath.Join(tmp, "file.go"),
		filepath.Join(tmp, "test.txt"),
	}

	for _, p := range paths {
		t.Run(p, func(t *testing.T) {
			uri := Normalize(p)
			if !strings.HasPrefix(uri, "file://") {
				t.Fatalf("Normalize(%s) = %s, should start with file://", p, uri)
			}
			got := ToFilePath(uri)
			wantAbs, _ := filepath.Abs(p)
			gotAbs, _ := filepath.Abs(got)
			if filepath.Clean(gotAbs) != filepath.Clean(wantAbs) {
				t.Errorf("round trip failed: %s -> %s -> %s (want %s)", p, uri, got, wantAbs)
			}
		})
	}
}

func TestURIToPath_WithSpaces(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "dir with space", "file.go")
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	uri, err := PathToURI(p)
	if err != nil {
		t.Fatalf("PathToURI failed: %v", err)
	}

	got, err := URIToPath(uri)
	if err != nil {
		t.Fatalf("URIToPath failed: %v", err)
	}

	want := filepath.Clean(p)
	got = filepath.Clean(got)
	if got != want {
		t.Fatalf("URIToPath(%q) = %q, want %q", uri, got, want)
	}
}
