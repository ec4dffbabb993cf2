// Package session owns the daemon's complete (workspace-root × server-name)
// matrix of running Workspaces, starting and stopping the language-server
// children that back them (spec §4.4).
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lspd/lspd/logger"
	"github.com/lspd/lspd/servers"
	"github.com/lspd/lspd/workspace"
)

// NoLanguageServerError is returned when no server is configured for a
// file's language (spec §4.4 get_or_create_workspace).
type NoLanguageServerError struct {
	Language string
}

func (e *NoLanguageServerError) Error() string {
	return fmt.Sprintf("session: no language server configured for %q", e.Language)
}

// WorkspaceInfo summarizes one running Workspace for describe-session.
type WorkspaceInfo struct {
	Root       string
	ServerName string
	LanguageID string
	Status     string
}

// Session maps workspace root -> server name -> Workspace (spec §3, §4.4).
// Invariant: every contained Workspace's Root equals its outer map key.
type Session struct {
	mu         sync.Mutex
	registry   *servers.Registry
	preferred  map[string]string // language id -> preferred server name (spec §6)
	logDir     string
	workspaces map[string]map[string]*workspace.Workspace
}

// New builds an empty Session. preferred comes from config.toml's
// `servers.<lang>.preferred` keys.
func New(registry *servers.Registry, preferred map[string]string, logDir string) *Session {
	if preferred == nil {
		preferred = map[string]string{}
	}
	return &Session{
		registry:   registry,
		preferred:  preferred,
		logDir:     logDir,
		workspaces: make(map[string]map[string]*workspace.Workspace),
	}
}

// GetOrCreateWorkspace resolves filePath's language via the extension
// registry and delegates to GetOrCreateWorkspaceForLanguage (spec §4.4).
func (s *Session) GetOrCreateWorkspace(ctx context.Context, filePath, workspaceRoot string) (*workspace.Workspace, error) {
	ext := strings.TrimPrefix(filepath.Ext(filePath), ".")
	lang, ok := s.registry.LanguageForExtension(ext)
	if !ok {
		return nil, &NoLanguageServerError{Language: ext}
	}
	return s.GetOrCreateWorkspaceForLanguage(ctx, lang, workspaceRoot)
}

// GetOrCreateWorkspaceForLanguage returns the existing Workspace for
// (workspaceRoot, the server configured for lang), starting one if none
// exists yet. Starting a server is a suspending operation performed outside
// the lock; only a successfully started Workspace is inserted, so a failed
// start leaves no zombie entry (spec §4.4).
func (s *Session) GetOrCreateWorkspaceForLanguage(ctx context.Context, lang, workspaceRoot string) (*workspace.Workspace, error) {
	root := filepath.Clean(workspaceRoot)

	cfg, ok := s.registry.ForLanguage(lang, s.preferredFor(lang))
	if !ok {
		return nil, &NoLanguageServerError{Language: lang}
	}

	s.mu.Lock()
	if byServer, ok := s.workspaces[root]; ok {
		if ws, ok := byServer[cfg.Name]; ok {
			s.mu.Unlock()
			return ws, nil
		}
	}
	s.mu.Unlock()

	ws := workspace.New(root, lang, cfg)
	if err := ws.StartServer(ctx, s.logDir); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspaces[root] == nil {
		s.workspaces[root] = make(map[string]*workspace.Workspace)
	}
	if existing, ok := s.workspaces[root][cfg.Name]; ok {
		// Another task won the race to start this (root, server); keep the
		// winner and tear down our redundant start.
		go ws.StopServer(context.Background())
		return existing, nil
	}
	s.workspaces[root][cfg.Name] = ws
	logger.Info(fmt.Sprintf("session: started %s for %s at %s", cfg.Name, lang, root))
	return ws, nil
}

func (s *Session) preferredFor(lang string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferred[lang]
}

// GetWorkspaceForFile returns an existing Workspace whose root contains
// path, choosing the longest such root when several do, without starting
// anything (spec §4.4).
func (s *Session) GetWorkspaceForFile(path string) (*workspace.Workspace, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var bestRoot string
	var best *workspace.Workspace
	for root, byServer := range s.workspaces {
		rel, err := filepath.Rel(root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) <= len(bestRoot) {
			continue
		}
		for _, ws := range byServer {
			bestRoot, best = root, ws
			break
		}
	}
	return best, best != nil
}

// Workspaces returns every running Workspace across every root, for
// shutdown and describe-session.
func (s *Session) Workspaces() []*workspace.Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*workspace.Workspace
	for _, byServer := range s.workspaces {
		for _, ws := range byServer {
			out = append(out, ws)
		}
	}
	return out
}

// Describe summarizes every running Workspace (spec §6 `describe-session`).
func (s *Session) Describe() []WorkspaceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []WorkspaceInfo
	for root, byServer := range s.workspaces {
		for name, ws := range byServer {
			status := "stopped"
			if c := ws.Client(); c != nil {
				status = c.Status().String()
			}
			out = append(out, WorkspaceInfo{Root: root, ServerName: name, LanguageID: ws.LanguageID, Status: status})
		}
	}
	return out
}

// RemoveWorkspace stops and forgets every server running at root (spec §4.9
// `remove-workspace`), returning the count stopped.
func (s *Session) RemoveWorkspace(ctx context.Context, root string) int {
	root = filepath.Clean(root)

	s.mu.Lock()
	byServer := s.workspaces[root]
	delete(s.workspaces, root)
	s.mu.Unlock()

	n := 0
	for _, ws := range byServer {
		if err := ws.StopServer(ctx); err != nil {
			logger.Warn(fmt.Sprintf("session: stopping workspace at %s: %v", root, err))
		}
		n++
	}
	return n
}

// RestartWorkspace stops every server running at root and immediately
// restarts each with its original (language, config) pairing (spec §4.9
// `restart-workspace`), returning the count successfully restarted.
func (s *Session) RestartWorkspace(ctx context.Context, root string) int {
	root = filepath.Clean(root)

	s.mu.Lock()
	byServer := s.workspaces[root]
	delete(s.workspaces, root)
	s.mu.Unlock()

	started := 0
	for name, ws := range byServer {
		lang := ws.LanguageID
		_ = ws.StopServer(ctx)

		cfg, ok := s.registry.ByName(name)
		if !ok {
			continue
		}
		nw := workspace.New(root, lang, cfg)
		if err := nw.StartServer(ctx, s.logDir); err != nil {
			logger.Warn(fmt.Sprintf("session: restart of %s at %s failed: %v", name, root, err))
			continue
		}

		s.mu.Lock()
		if s.workspaces[root] == nil {
			s.workspaces[root] = make(map[string]*workspace.Workspace)
		}
		s.workspaces[root][name] = nw
		s.mu.Unlock()
		started++
	}
	return started
}

// Shutdown stops every Workspace across every root (spec §4.8 graceful
// shutdown's "stop all Workspaces" step).
func (s *Session) Shutdown(ctx context.Context) {
	for _, ws := range s.Workspaces() {
		if err := ws.StopServer(ctx); err != nil {
			logger.Warn(fmt.Sprintf("session: shutdown stop failed: %v", err))
		}
	}
}
