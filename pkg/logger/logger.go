// Package logger provides the structured logging interface used across the
// client, with slog, zerolog and zap backends.
//
// Every method takes a message followed by alternating key/value pairs, the
// same calling convention as log/slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// New returns a Logger backed by the given slog handler.
func New(h slog.Handler) Logger {
	return slog.New(h)
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps "debug", "info", "warn" and "error" to a slog level.
// An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects a logging backend.
type Format string

const (
	FormatText    Format = "text"
	FormatJSON    Format = "json"
	FormatZerolog Format = "zerolog"
	FormatZap     Format = "zap"
)

// Open builds a Logger writing to w in the given format at the given level.
func Open(w io.Writer, format Format, level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	switch format {
	case "", FormatText:
		return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	case FormatJSON:
		return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
	case FormatZerolog:
		data, err := NewBuild().FromBuffer(w).WithLevel(lvl).Make()
		if err != nil {
			return nil, err
		}
		return data, nil
	case FormatZap:
		return NewZap(w, lvl), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
