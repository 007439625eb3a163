// Package logging builds the process logger for the roadsim binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps debug/info/warn/error (case-insensitive) to a slog.Level.
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a logger writing to w in "text" or "json" format. component,
// when set, is attached to every record.
func New(w io.Writer, level, format, component string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	if component != "" {
		l = l.With("component", component)
	}
	return l
}

// FromEnv builds a stderr logger from LOG_LEVEL and LOG_FORMAT, letting a
// non-empty flag value take precedence over the environment.
func FromEnv(flagLevel, flagFormat, component string) *slog.Logger {
	level := flagLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	format := flagFormat
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	return New(os.Stderr, level, format, component)
}
