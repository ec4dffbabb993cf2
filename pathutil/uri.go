// Package pathutil converts between file:// URIs and absolute filesystem
// paths. Adapted from the teacher's utils/uri.go; the Windows drive-letter
// and UNC handling is kept verbatim in shape since the daemon's LSP
// children may run against workspaces checked out from either OS.
package pathutil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts a local OS path into a file:// URI (spec §3 "Document
// URI ... round-trips with absolute filesystem path").
func PathToURI(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("pathutil: path is empty")
	}

	isWindowsAbs := isWindowsAbsPath(path)
	if !isWindowsAbs {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	slashPath := strings.ReplaceAll(path, "\\", "/")
	if isWindowsAbs {
		slashPath = strings.ReplaceAll(slashPath, "//", "/")
	} else {
		slashPath = filepath.ToSlash(filepath.Clean(path))
	}

	if len(slashPath) >= 2 && slashPath[1] == ':' {
		slashPath = "/" + slashPath
	}

	u := url.URL{Scheme: "file", Path: slashPath}
	return u.String(), nil
}

// URIToPath converts a file:// URI into a local OS path, decoding percent
// escapes.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("pathutil: invalid uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("pathutil: not a file uri: %s", u.Scheme)
	}

	if u.Host != "" {
		p, err := url.PathUnescape(u.Path)
		if err != nil {
			return "", fmt.Errorf("pathutil: invalid uri path escape: %w", err)
		}
		return filepath.FromSlash("//" + u.Host + p), nil
	}

	p, err := url.PathUnescape(u.Path)
	if err != nil {
		return "", fmt.Errorf("pathutil: invalid uri path escape: %w", err)
	}

	if strings.HasPrefix(p, "/") && len(p) >= 3 && p[2] == ':' {
		p = p[1:]
	}

	return filepath.FromSlash(p), nil
}

// Normalize accepts a file URI, a bare scheme URI, or a local path and
// returns a canonical file:// URI (local paths only); other schemes pass
// through unchanged.
func Normalize(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return uri
	}
	if strings.HasPrefix(uri, "file://") || strings.HasPrefix(uri, "file:") {
		return uri
	}
	if strings.Contains(uri, "://") {
		return uri
	}
	if u, err := PathToURI(uri); err == nil {
		return u
	}
	return "file://" + filepath.ToSlash(uri)
}

// ToFilePath converts a URI (or already-local path) to a local path,
// best-effort on malformed input.
func ToFilePath(uri string) string {
	uri = strings.TrimSpace(uri)
	if strings.HasPrefix(uri, "file://") || strings.HasPrefix(uri, "file:") {
		if p, err := URIToPath(uri); err == nil {
			return p
		}
		return strings.TrimPrefix(strings.TrimPrefix(uri, "file://"), "file:")
	}
	return uri
}

func isWindowsAbsPath(p string) bool {
	if len(p) < 2 {
		return false
	}
	letter := p[0]
	if (letter >= 'A' && letter <= 'Z') || (letter >= 'a' && letter <= 'z') {
		return p[1] == ':'
	}
	return false
}

// RelativeTo returns path relative to root using forward slashes, for the
// workspace-relative paths stored on model.Symbol (spec §3).
func RelativeTo(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
