// Package logger provides structured logging setup for supportchat.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/supportchat/internal/config"
)

// Closer releases the log destination.
type Closer interface {
	Close() error
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates a *slog.Logger from the given Logging config. Records go to
// cfg.File when set, otherwise to stderr so stdout stays free for the
// transcript. Every record carries a "service" attribute.
func New(cfg config.Logging) (*slog.Logger, Closer, error) {
	var (
		w      io.Writer = os.Stderr
		closer Closer    = nopCloser{}
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path from operator config
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	return NewWithWriter(cfg, w), closer, nil
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(cfg config.Logging, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("service", cfg.Service)
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
