// Package workspace owns one language server child process on behalf of
// one workspace root, mirroring which documents are open and forwarding
// filesystem change notifications (spec §4.3).
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/myleshyson/lsprotocol-go/protocol"

	"github.com/lspd/lspd/lsp"
	"github.com/lspd/lspd/logger"
	"github.com/lspd/lspd/model"
	"github.com/lspd/lspd/pathutil"
	"github.com/lspd/lspd/servers"
	"github.com/lspd/lspd/symbolindex"
)

// indexingBudget and preemptiveIndexBudget bound how long start_server
// waits for a freshly launched server to settle (spec §4.3).
const (
	indexingBudget        = 60 * time.Second
	preemptiveIndexBudget = 30 * time.Second
)

// lazyIndexingServers names servers known to index lazily on first
// request rather than eagerly on initialize; Workspace preemptively opens
// every matching file under the root for these so later requests don't
// pay a per-file cold-start cost (spec §4.3).
var lazyIndexingServers = map[string]bool{
	"bsl-language-server": true,
}

// asyncQueueServers names servers known to process messages from an
// internal queue asynchronously, so a throwaway request after didOpen is
// needed before the open is guaranteed visible (spec §4.3).
var asyncQueueServers = map[string]bool{
	"bsl-language-server": true,
}

// Workspace owns one LSP child process rooted at Root.
type Workspace struct {
	mu sync.Mutex

	Root       string
	LanguageID string
	ServerName string
	cfg        servers.Config

	client  *lsp.Client
	open    map[string]model.OpenDocument // absPath -> mirror
	watcher *fsnotify.Watcher
}

// StartupError carries the structured failure context spec §4.3 requires:
// server identity, the wrapped cause, a stderr tail, and (when the tail
// matches a known pattern) a named remediation.
type StartupError struct {
	ServerName string
	LanguageID string
	Root       string
	Cause      error
	StderrTail []string
	LogPath    string
	Remedy     string
}

func (e *StartupError) Error() string {
	msg := fmt.Sprintf("workspace: %s (%s) failed to start at %s: %v", e.ServerName, e.LanguageID, e.Root, e.Cause)
	if e.Remedy != "" {
		msg += "; " + e.Remedy
	}
	return msg
}

func (e *StartupError) Unwrap() error { return e.Cause }

// knownStderrRemedies maps a substring a server's stderr might contain to
// a human remediation string (spec §4.3's rust-analyzer/Cargo.toml
// examples).
var knownStderrRemedies = []struct {
	match  string
	remedy string
}{
	{"rust-analyzer", "run `rustup component add rust-analyzer`"},
	{"no such file or directory: Cargo.toml", "the directory is not a valid Rust project (no Cargo.toml)"},
	{"could not find `Cargo.toml`", "the directory is not a valid Rust project (no Cargo.toml)"},
}

func remedyFor(stderrTail []string) string {
	joined := strings.Join(stderrTail, "\n")
	for _, r := range knownStderrRemedies {
		if strings.Contains(joined, r.match) {
			return r.remedy
		}
	}
	return ""
}

// New constructs a Workspace that has not yet launched its server.
func New(root, languageID string, cfg servers.Config) *Workspace {
	return &Workspace{
		Root:       root,
		LanguageID: languageID,
		ServerName: cfg.Name,
		cfg:        cfg,
		open:       make(map[string]model.OpenDocument),
	}
}

// StartServer launches the configured command, runs the initialize
// handshake, and waits for the server to report indexing has settled
// (spec §4.3 start_server).
func (w *Workspace) StartServer(ctx context.Context, logDir string) error {
	command, args := w.cfg.ResolveCommand(map[string]string{"WORKSPACE_ROOT": w.Root})

	client, err := lsp.Start(ctx, lsp.StartOptions{
		Name:    w.cfg.Name,
		Command: command,
		Args:    args,
		Dir:     w.Root,
		Env:     toEnvList(w.cfg.Env),
	})
	if err != nil {
		return w.wrapStartupError(err, logDir)
	}

	rootURI, err := pathutil.PathToURI(w.Root)
	if err != nil {
		return w.wrapStartupError(err, logDir)
	}

	initCtx, cancel := context.WithTimeout(ctx, indexingBudget)
	defer cancel()

	if _, err := client.Initialize(initCtx, rootURI, w.cfg.InitializationOptions); err != nil {
		return w.wrapStartupError(err, logDir)
	}

	if !client.WaitServiceReady(initCtx, indexingBudget) {
		logger.Warn(fmt.Sprintf("workspace: %s did not report ServiceReady within %s", w.ServerName, indexingBudget))
	}
	if !client.WaitQuiescent(initCtx, indexingBudget) {
		logger.Warn(fmt.Sprintf("workspace: %s did not reach quiescence within %s", w.ServerName, indexingBudget))
	}

	w.mu.Lock()
	w.client = client
	w.mu.Unlock()

	if lazyIndexingServers[w.ServerName] {
		w.preemptivelyIndex(ctx)
	}

	w.startWatcher(ctx)

	return nil
}

// startWatcher watches Root for filesystem changes made outside any
// editor (external tools, VCS checkouts, generated code) and forwards them
// via notify_files_changed so servers that rely on workspace/
// didChangeWatchedFiles stay in sync (spec §4.3). Failure to start the
// watcher is non-fatal: the server simply relies on didOpen/didChange from
// this daemon's own document mirroring instead.
func (w *Workspace) startWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn(fmt.Sprintf("workspace: %s: fsnotify unavailable: %v", w.Root, err))
		return
	}
	if err := addRecursive(watcher, w.Root); err != nil {
		logger.Warn(fmt.Sprintf("workspace: %s: fsnotify watch failed: %v", w.Root, err))
		watcher.Close()
		return
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.watchLoop(ctx, watcher)
}

// addRecursive registers every directory under root with the watcher,
// skipping hidden (dot-prefixed) directories; fsnotify is not recursive on
// its own.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

func (w *Workspace) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			changeType := fsEventToChangeType(event.Op)
			if changeType == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			_ = w.NotifyFilesChanged(ctx, []model.FileChange{{Path: event.Name, Type: changeType}})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn(fmt.Sprintf("workspace: %s: fsnotify error: %v", w.Root, err))
		}
	}
}

func fsEventToChangeType(op fsnotify.Op) model.FileChangeType {
	switch {
	case op&fsnotify.Remove != 0:
		return model.FileDeleted
	case op&fsnotify.Create != 0:
		return model.FileCreated
	case op&fsnotify.Write != 0, op&fsnotify.Rename != 0:
		return model.FileChanged
	default:
		return 0
	}
}

func (w *Workspace) wrapStartupError(cause error, logDir string) error {
	logPath := filepath.Join(logDir, w.ServerName+".log")
	tail, _ := logger.TailLines(logPath, 30)
	remedy := remedyFor(tail)
	if _, ok := cause.(*lsp.LanguageServerNotFoundError); ok && remedy == "" {
		remedy = w.cfg.NotFoundRemediation()
	}
	return &StartupError{
		ServerName: w.ServerName,
		LanguageID: w.LanguageID,
		Root:       w.Root,
		Cause:      cause,
		StderrTail: tail,
		LogPath:    logPath,
		Remedy:     remedy,
	}
}

// preemptivelyIndex opens every file under the root matching this
// workspace's configured extensions, waits for the server to settle again,
// then closes them back down (spec §4.3: servers that index lazily need a
// cold pass over the whole tree before later single-file requests are
// fast).
func (w *Workspace) preemptivelyIndex(ctx context.Context) {
	extSet := make(map[string]bool, len(w.cfg.Extensions))
	for _, ext := range w.cfg.Extensions {
		extSet[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	files, err := symbolindex.DiscoverFiles(w.Root, func(ext string) (string, bool, bool) {
		return w.LanguageID, false, extSet[strings.ToLower(ext)]
	})
	if err != nil {
		logger.Warn(fmt.Sprintf("workspace: %s preemptive index discovery failed: %v", w.ServerName, err))
		return
	}

	for _, f := range files {
		if _, _, err := w.EnsureDocumentOpen(ctx, f); err != nil {
			logger.Debug(fmt.Sprintf("workspace: %s preemptive open of %s failed: %v", w.ServerName, f, err))
		}
	}

	indexCtx, cancel := context.WithTimeout(ctx, preemptiveIndexBudget)
	defer cancel()
	if client := w.Client(); client != nil {
		client.WaitQuiescent(indexCtx, preemptiveIndexBudget)
	}

	for _, f := range files {
		_ = w.CloseDocument(ctx, f)
	}
}

func toEnvList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// Client returns the underlying LSP client, or nil if StartServer has not
// completed.
func (w *Workspace) Client() *lsp.Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.client
}

// EnsureDocumentOpen mirrors spec §4.3's ensure_document_open: opens the
// document if unmirrored, or closes-then-reopens if the on-disk content no
// longer matches the mirror (this daemon does not track incremental
// edits, so a clean reopen is simpler and more reliable than partial
// sync).
func (w *Workspace) EnsureDocumentOpen(ctx context.Context, absPath string) (uri string, alreadyOpen bool, err error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", false, fmt.Errorf("workspace: read %s: %w", absPath, err)
	}

	uri, err = pathutil.PathToURI(absPath)
	if err != nil {
		return "", false, err
	}

	w.mu.Lock()
	existing, mirrored := w.open[absPath]
	w.mu.Unlock()

	if mirrored {
		if existing.Content == string(content) {
			return uri, true, nil
		}
		if err := w.CloseDocument(ctx, absPath); err != nil {
			return "", false, err
		}
	}

	client := w.Client()
	if client == nil {
		return "", false, fmt.Errorf("workspace: %s has no running client", w.Root)
	}

	if err := client.DidOpen(ctx, uri, languageKind(w.LanguageID), string(content), 1); err != nil {
		return "", false, err
	}

	w.mu.Lock()
	w.open[absPath] = model.OpenDocument{URI: uri, Version: 1, Content: string(content), LanguageID: w.LanguageID}
	w.mu.Unlock()

	if asyncQueueServers[w.ServerName] {
		_, _ = client.DocumentSymbols(ctx, uri)
	}

	return uri, mirrored, nil
}

// CloseDocument sends textDocument/didClose and drops the mirror entry
// (spec §4.3 close_document).
func (w *Workspace) CloseDocument(ctx context.Context, absPath string) error {
	w.mu.Lock()
	doc, ok := w.open[absPath]
	delete(w.open, absPath)
	w.mu.Unlock()
	if !ok {
		return nil
	}

	client := w.Client()
	if client == nil {
		return nil
	}
	return client.DidClose(ctx, doc.URI)
}

// DocumentSymbols proxies to the underlying client, satisfying
// symbolindex.DocumentSymbolSource.
func (w *Workspace) DocumentSymbols(ctx context.Context, uri string) ([]protocol.DocumentSymbol, error) {
	client := w.Client()
	if client == nil {
		return nil, fmt.Errorf("workspace: %s has no running client", w.Root)
	}
	return client.DocumentSymbols(ctx, uri)
}

// NotifyFilesChanged forwards filesystem changes observed outside the
// editor (spec §4.3 notify_files_changed).
func (w *Workspace) NotifyFilesChanged(ctx context.Context, changes []model.FileChange) error {
	client := w.Client()
	if client == nil {
		return nil
	}

	events := make([]protocol.FileEvent, len(changes))
	for i, ch := range changes {
		uri, err := pathutil.PathToURI(ch.Path)
		if err != nil {
			continue
		}
		events[i] = protocol.FileEvent{
			Uri:  protocol.DocumentUri(uri),
			Type: protocol.FileChangeType(ch.Type),
		}
	}
	return client.DidChangeWatchedFiles(ctx, events)
}

// StopServer closes every mirrored document, shuts the client down, and
// clears state (spec §4.3 stop_server).
func (w *Workspace) StopServer(ctx context.Context) error {
	w.mu.Lock()
	paths := make([]string, 0, len(w.open))
	for p := range w.open {
		paths = append(paths, p)
	}
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if watcher != nil {
		watcher.Close()
	}

	for _, p := range paths {
		_ = w.CloseDocument(ctx, p)
	}

	client := w.Client()
	if client == nil {
		return nil
	}
	return client.Stop(ctx)
}

// languageKind maps a configured language id string to the LSP
// LanguageKind the server expects at didOpen.
func languageKind(languageID string) protocol.LanguageKind {
	return protocol.LanguageKind(languageID)
}
