// Package logger is the daemon-wide leveled logging facade. Every other
// package logs through the package-level functions here rather than
// importing logrus directly, so the backing sink can be swapped (daemon vs.
// client stub, file vs. stderr) without touching call sites.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu  sync.RWMutex
	log = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Options configures the rolling log file described in spec §6
// (`log/daemon.log`).
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Level      string
}

// Configure redirects the package logger to a rolling file. Called once by
// cmd/lspd at startup; the client stub (cmd/lsp) leaves the default stderr
// sink in place.
func Configure(opts Options) error {
	mu.Lock()
	defer mu.Unlock()

	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})

	var out io.Writer = os.Stderr
	if opts.Path != "" {
		out = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    maxOr(opts.MaxSizeMB, 20),
			MaxBackups: maxOr(opts.MaxBackups, 5),
			MaxAge:     maxOr(opts.MaxAgeDays, 0),
		}
	}
	l.SetOutput(out)

	level, err := logrus.ParseLevel(orDefault(opts.Level, "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	log = l
	return nil
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func current() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs a low-level trace message (protocol frames, pending-map churn).
func Debug(msg string) { current().Debug(msg) }

// Info logs a notable lifecycle event (server started, workspace opened).
func Info(msg string) { current().Info(msg) }

// Warn logs a recoverable anomaly (stale cache entry, corrupt record skipped).
func Warn(msg string) { current().Warn(msg) }

// Error logs a failure, optionally wrapping the causing error.
func Error(msg string, err error) {
	if err != nil {
		current().WithError(err).Error(msg)
		return
	}
	current().Error(msg)
}

// Fields logs a structured event; used where callers have several values
// worth correlating (server name, workspace root, elapsed time).
func Fields(level string, msg string, fields map[string]any) {
	entry := current().WithFields(logrus.Fields(fields))
	switch level {
	case "debug":
		entry.Debug(msg)
	case "warn":
		entry.Warn(msg)
	case "error":
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}

// TailLines reads the last n lines of the file at path, used by the
// "internal error" CLI path (§7: "appends the last 15 lines of the daemon
// log") and by language-server-startup-error (§4.3: "last 30 lines of the
// server's stderr log").
func TailLines(path string, n int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := splitLines(string(data))
	if len(lines) <= n {
		return lines, nil
	}
	return lines[len(lines)-n:], nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
