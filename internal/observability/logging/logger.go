package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger is the structured logger of the api and worker processes.
func NewJSONLogger(service, level string) *slog.Logger {
	return newLogger(os.Stdout, service, level, true)
}

// NewConsoleLogger writes text records to stderr so they do not mix with the
// interactive chat output on stdout.
func NewConsoleLogger(service, level string) *slog.Logger {
	return newLogger(os.Stderr, service, level, false)
}

func newLogger(w io.Writer, service, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

func ParseLevel(level string) slog.Level {
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
