// Package logutil holds the slog helpers shared by main, services and tests.
package logutil

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace sits below debug; slog has no trace level of its own.
const LevelTrace = slog.LevelDebug - 4

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// Noop returns a logger that drops everything.
func Noop() *slog.Logger { return discard }

// NoopIfNil returns l, or a discard logger when l is nil.
func NoopIfNil(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discard
	}
	return l
}

// ParseLevel maps a config level name to a slog level. Unknown names fall
// back to info; config validation rejects them earlier.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewJSON builds the process logger: JSON lines at the given level.
func NewJSON(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}
