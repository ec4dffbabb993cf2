// Package daemon implements the Unix-socket request dispatcher (spec §4.8)
// and WorkspaceEdit application (spec §4.10). It owns no command-specific
// logic itself; package handlers supplies the HandlerFunc values this
// package's Dispatcher routes to.
package daemon

import (
	"time"

	"github.com/lspd/lspd/cache"
	"github.com/lspd/lspd/config"
	"github.com/lspd/lspd/servers"
	"github.com/lspd/lspd/session"
)

// HandlerContext is threaded through every handler call, giving it access
// to the Session and the two persistent caches (spec §4.8 "calls it with a
// HandlerContext carrying the Session and caches").
type HandlerContext struct {
	Session     *session.Session
	SymbolCache *cache.Cache
	HoverCache  *cache.Cache
	Config      *config.Config
	ConfigPath  string
	Registry    *servers.Registry
	LogDir      string
	StartedAt   time.Time

	// Shutdown requests that Serve's accept loop stop and the graceful
	// shutdown sequence run, wired by cmd/lspd to the Serve context's
	// cancel function. Set after NewDispatcher so handlers never see nil.
	Shutdown func()
}
