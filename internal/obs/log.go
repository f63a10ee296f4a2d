package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LogConfig selects level, format (json or text) and output (stdout or stderr).
type LogConfig struct {
	Level  string
	Format string
	Output string
}

var logger atomic.Pointer[slog.Logger]

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	l := newLogger(os.Stdout, LogConfig{}, "dev")
	logger.CompareAndSwap(nil, l)
	return logger.Load()
}

// Setup installs the process logger and returns it.
func Setup(cfg LogConfig, version string) *slog.Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	l := newLogger(out, cfg, version)
	SetLogger(l)
	return l
}

// SetLogger replaces the shared logger. Tests use it to capture output.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	slog.SetDefault(l)
}

// NewLogger builds a logger writing to w without installing it.
func NewLogger(w io.Writer, cfg LogConfig, version string) *slog.Logger {
	return newLogger(w, cfg, version)
}

func newLogger(w io.Writer, cfg LogConfig, version string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", "pickly-identity", "version", version)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
