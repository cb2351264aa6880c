package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New builds the process logger. format is "json" (default) or "text".
func New(w io.Writer, level slog.Level, format string, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(format) == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}
