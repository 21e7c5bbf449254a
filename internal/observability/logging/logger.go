package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger is used by long-running services.
func NewJSONLogger(service, level string) *slog.Logger {
	return newLogger(os.Stdout, service, level, true)
}

// NewCLILogger writes human-readable lines to stderr so command output on
// stdout stays machine-readable.
func NewCLILogger(level string) *slog.Logger {
	return newLogger(os.Stderr, "searchctl", level, false)
}

func newLogger(w io.Writer, service, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
