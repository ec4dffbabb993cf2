// Command lspd is the long-running daemon: it owns the Session, the two
// persistent caches, and the Unix-socket dispatcher every lspd client
// talks to (spec §4.1, §4.8).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lspd/lspd/cache"
	"github.com/lspd/lspd/config"
	"github.com/lspd/lspd/daemon"
	"github.com/lspd/lspd/handlers"
	"github.com/lspd/lspd/logger"
	"github.com/lspd/lspd/servers"
	"github.com/lspd/lspd/session"
)

const appName = "lspd"

func main() {
	configPath := flag.String("config", "", "path to config.toml (default <config-dir>/lspd/config.toml)")
	flag.Parse()

	cacheDir, err := defaultCacheDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lspd:", err)
		os.Exit(1)
	}
	if *configPath == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "lspd:", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(cfgDir, appName, "config.toml")
	}

	if err := run(cacheDir, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, "lspd:", err)
		os.Exit(1)
	}
}

// defaultCacheDir resolves <cache>/lspd, respecting XDG_CACHE_HOME via
// os.UserCacheDir (spec §6 "On-disk state under <cache>").
func defaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(base, appName), nil
}

func run(cacheDir, configPath string) error {
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return fmt.Errorf("create cache dir %s: %w", cacheDir, err)
	}
	logDir := filepath.Join(cacheDir, "log")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return fmt.Errorf("create log dir %s: %w", logDir, err)
	}

	if err := logger.Configure(logger.Options{
		Path:       filepath.Join(logDir, "daemon.log"),
		MaxSizeMB:  20,
		MaxBackups: 5,
		Level:      "info",
	}); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	preferred := make(map[string]string, len(cfg.Servers))
	for lang, pref := range cfg.Servers {
		preferred[lang] = pref.Preferred
	}
	registry := servers.NewRegistry(servers.Defaults())

	symbolCache, err := cache.Open(filepath.Join(cacheDir, "symbol-cache.db"), cfg.Daemon.SymbolCacheSize)
	if err != nil {
		return fmt.Errorf("open symbol cache: %w", err)
	}
	defer symbolCache.Close()

	hoverCache, err := cache.Open(filepath.Join(cacheDir, "hover-cache.db"), cfg.Daemon.HoverCacheSize)
	if err != nil {
		return fmt.Errorf("open hover cache: %w", err)
	}
	defer hoverCache.Close()

	sess := session.New(registry, preferred, logDir)

	hctx := &daemon.HandlerContext{
		Session:     sess,
		SymbolCache: symbolCache,
		HoverCache:  hoverCache,
		Config:      cfg,
		ConfigPath:  configPath,
		Registry:    registry,
		LogDir:      logDir,
		StartedAt:   time.Now(),
	}

	dispatcher := daemon.NewDispatcher(hctx)
	registerHandlers(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hctx.Shutdown = cancel

	paths := daemon.Paths{
		CacheDir:   cacheDir,
		SocketPath: filepath.Join(cacheDir, "daemon.sock"),
		LockPath:   filepath.Join(cacheDir, "daemon.lock"),
		PIDPath:    filepath.Join(cacheDir, "daemon.pid"),
	}

	return dispatcher.Serve(ctx, paths, func(shutdownCtx context.Context) {
		sess.Shutdown(shutdownCtx)
	})
}

// registerHandlers wires every package handlers command into the
// dispatch table (spec §6 dispatch table).
func registerHandlers(d *daemon.Dispatcher) {
	d.Register("shutdown", handlers.Shutdown)
	d.Register("describe-session", handlers.DescribeSession)
	d.Register("resolve-symbol", handlers.ResolveSymbol)
	d.Register("show", handlers.Show)
	d.Register("declaration", handlers.Declaration)
	d.Register("references", handlers.References)
	d.Register("implementations", handlers.Implementations)
	d.Register("subtypes", handlers.Subtypes)
	d.Register("supertypes", handlers.Supertypes)
	d.Register("grep", handlers.Grep)
	d.Register("files", handlers.Files)
	d.Register("calls", handlers.Calls)
	d.Register("rename", handlers.Rename)
	d.Register("move-file", handlers.MoveFile)
	d.Register("raw-lsp-request", handlers.RawLSPRequest)
	d.Register("restart-workspace", handlers.RestartWorkspace)
	d.Register("remove-workspace", handlers.RemoveWorkspace)
}
