// Package obslog wires up the process-wide slog logger from config, the
// only logging setup this module needs: every package that owns a
// goroutine takes a *slog.Logger rather than reaching for a global.
package obslog

import (
	"log/slog"
	"os"
	"strings"

	"github.com/haasonsaas/nexus/internal/config"
)

// New builds a *slog.Logger from cfg.Logging, defaulting to info/text.
func New(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
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
