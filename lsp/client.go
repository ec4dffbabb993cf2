// Package lsp implements a multiplexed JSON-RPC client for a single child
// language server process (spec §4.2). It wraps github.com/sourcegraph/jsonrpc2
// over the framed transport in package rpcwire, adding typed request
// wrappers, capability negotiation, progress tracking, and error
// classification on top.
package lsp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/myleshyson/lsprotocol-go/protocol"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/lspd/lspd/logger"
	"github.com/lspd/lspd/rpcwire"
)

// Status is the lifecycle state of a Client's connection to its child
// process.
type Status int

const (
	StatusStarting Status = iota
	StatusInitializing
	StatusReady
	StatusDisconnected
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusDisconnected:
		return "disconnected"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Metrics counts request outcomes for status/diagnostics reporting.
type Metrics struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
}

// Client owns one child language-server process and its JSON-RPC
// connection. All blocking calls take a context and a per-call timeout;
// a stuck server degrades the caller, it never wedges the daemon's single
// event loop (spec §5).
type Client struct {
	mu sync.RWMutex

	name string
	cmd  *exec.Cmd
	conn *jsonrpc2.Conn

	ctx    context.Context
	cancel context.CancelFunc

	clientCapabilities protocol.ClientCapabilities
	serverCapabilities protocol.ServerCapabilities

	progress *ProgressTracker
	status   Status
	lastErr  error

	metrics Metrics

	serviceReadyCh   chan struct{}
	serviceReadyOnce sync.Once
}

// StartOptions configures the child process launch.
type StartOptions struct {
	Name    string
	Command string
	Args    []string
	Env     []string
	Dir     string
}

// Start launches the server's command and wires a JSON-RPC connection over
// its stdio (spec §4.2, §4.3 "each Workspace owns exactly one child
// process"). Stderr is drained to the logger rather than left to block the
// child's pipe buffer.
func Start(ctx context.Context, opts StartOptions) (*Client, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &LanguageServerStartupError{ServerName: opts.Name, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &LanguageServerStartupError{ServerName: opts.Name, Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LanguageServerStartupError{ServerName: opts.Name, Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &LanguageServerNotFoundError{ServerName: opts.Name, Command: opts.Command, Cause: err}
	}

	childCtx, cancel := context.WithCancel(ctx)

	c := &Client{
		name:           opts.Name,
		cmd:            cmd,
		ctx:            childCtx,
		cancel:         cancel,
		progress:       NewProgressTracker(),
		status:         StatusStarting,
		serviceReadyCh: make(chan struct{}),
	}
	if !emitsServiceReady[opts.Name] {
		close(c.serviceReadyCh)
	}

	go drainStderr(opts.Name, stderr)

	stream := rpcwire.NewStream(stdioPipe{r: stdout, w: stdin})
	handler := &clientHandler{client: c}
	c.conn = jsonrpc2.NewConn(childCtx, stream, handler)

	go func() {
		<-c.conn.DisconnectNotify()
		c.mu.Lock()
		if c.status != StatusStopped {
			c.status = StatusDisconnected
		}
		c.mu.Unlock()
	}()

	go func() {
		_ = cmd.Wait()
	}()

	return c, nil
}

// stdioPipe adapts a child process's separate stdin/stdout pipes to the
// single io.ReadWriteCloser rpcwire.Stream expects.
type stdioPipe struct {
	r io.ReadCloser
	w io.WriteCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p stdioPipe) Close() error {
	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

func drainStderr(serverName string, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			logger.Debug(fmt.Sprintf("%s stderr: %s", serverName, buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// emitsServiceReady names servers known to emit `language/status
// {type: "ServiceReady"}` before they accept semantic requests (spec §4.2
// readiness). Every other server is treated as ready immediately.
var emitsServiceReady = map[string]bool{
	"bsl-language-server": true,
}

// markServiceReady fulfills the ServiceReady event exactly once, called
// from clientHandler on a `language/status {type: "ServiceReady"}`
// notification.
func (c *Client) markServiceReady() {
	c.serviceReadyOnce.Do(func() { close(c.serviceReadyCh) })
}

// WaitServiceReady blocks until the server's ServiceReady event fires or
// timeout elapses, returning whether it fired. A server not known to emit
// the event is already ready (spec §4.2).
func (c *Client) WaitServiceReady(ctx context.Context, timeout time.Duration) bool {
	select {
	case <-c.serviceReadyCh:
		return true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.serviceReadyCh:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

// WaitQuiescent blocks until the server's progress/indexing state has been
// empty for a short settle window or timeout elapses, returning whether it
// settled. Timeouts degrade rather than error (spec §4.2, §5).
func (c *Client) WaitQuiescent(ctx context.Context, timeout time.Duration) bool {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.progress.WaitQuiescent(waitCtx, 300*time.Millisecond, 100*time.Millisecond) == nil
}

// Name returns the server name this client was started for.
func (c *Client) Name() string { return c.name }

// Status returns the client's current lifecycle state.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Metrics returns a snapshot of request counters.
func (c *Client) Metrics() Metrics {
	return Metrics{
		TotalRequests:      atomic.LoadInt64(&c.metrics.TotalRequests),
		SuccessfulRequests: atomic.LoadInt64(&c.metrics.SuccessfulRequests),
		FailedRequests:     atomic.LoadInt64(&c.metrics.FailedRequests),
	}
}

// ProgressSnapshot exposes the server's current workDone progress state,
// used to decide whether a workspace looks "still indexing" (spec §4.3).
func (c *Client) ProgressSnapshot() ProgressSnapshot {
	return c.progress.Snapshot()
}

// ServerCapabilities returns the capabilities negotiated at Initialize.
func (c *Client) ServerCapabilities() protocol.ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverCapabilities
}

// Supports reports whether the server advertised provider support for a
// named capability key recognized by capabilityEnabled (spec §4.3 capability
// gating before declaration/references/etc.).
func (c *Client) Supports(capability string) bool {
	caps := c.ServerCapabilities()
	return capabilityEnabled(caps, capability)
}

// SendRequest issues a request and decodes the result into out, enforcing
// timeout. Errors are classified through classifyResponseError so callers
// can distinguish "not supported" from genuine failures (spec §4.2, §7).
func (c *Client) SendRequest(ctx context.Context, method string, params, out any, timeout time.Duration) error {
	atomic.AddInt64(&c.metrics.TotalRequests, 1)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.conn.Call(callCtx, method, params, out)
	if err == nil {
		atomic.AddInt64(&c.metrics.SuccessfulRequests, 1)
		return nil
	}

	atomic.AddInt64(&c.metrics.FailedRequests, 1)

	if callCtx.Err() != nil && ctx.Err() == nil {
		return &TimeoutError{Method: method}
	}

	if rpcErr, ok := err.(*jsonrpc2.Error); ok {
		return classifyResponseError(rpcErr)
	}

	return &TransportError{ServerName: c.name, Cause: err}
}

// SendNotification sends a fire-and-forget notification.
func (c *Client) SendNotification(ctx context.Context, method string, params any) error {
	if err := c.conn.Notify(ctx, method, params); err != nil {
		return &TransportError{ServerName: c.name, Cause: err}
	}
	return nil
}

// Stop sends shutdown/exit and terminates the child process if it does not
// exit on its own within the grace period (spec §4.3 "stop_server").
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.status = StatusStopped
	c.mu.Unlock()

	_ = c.SendRequest(ctx, "shutdown", nil, &struct{}{}, 5*time.Second)
	_ = c.SendNotification(ctx, "exit", nil)

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = c.cmd.Process.Kill()
		<-done
	}

	c.cancel()
	return c.conn.Close()
}

// LanguageServerNotFoundError means the configured command could not be
// executed at all (binary missing from PATH), per spec §7's remediation
// message requirement.
type LanguageServerNotFoundError struct {
	ServerName string
	Command    string
	Cause      error
}

func (e *LanguageServerNotFoundError) Error() string {
	return fmt.Sprintf("language server %q: command %q not found: %v", e.ServerName, e.Command, e.Cause)
}

func (e *LanguageServerNotFoundError) Unwrap() error { return e.Cause }

// LanguageServerStartupError means the process started but failed before
// completing initialize (e.g. stdio pipes failed to wire up).
type LanguageServerStartupError struct {
	ServerName string
	Cause      error
}

func (e *LanguageServerStartupError) Error() string {
	return fmt.Sprintf("language server %q failed to start: %v", e.ServerName, e.Cause)
}

func (e *LanguageServerStartupError) Unwrap() error { return e.Cause }
