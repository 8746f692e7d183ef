// Package logging provides structured logging for moldwatch.
//
// It wraps log/slog so every package logs the same way. Initialise once at
// startup, then take a component logger:
//
//	logging.Init(slog.LevelInfo, false)
//	log := logging.Component("monitoring")
//	log.Warn("shard query failed", "table", table, "error", err)
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger is the process-wide logger. Set it through Init or
// InitWithHandler.
var Logger *slog.Logger

var mu sync.Mutex

// Init installs a text or JSON handler on stdout at the given level.
func Init(level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	InitWithHandler(handler)
}

// InitWithHandler installs a custom handler. Tests use it to capture output.
func InitWithHandler(handler slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Component returns a logger tagged with component=name. Before Init it
// installs an info-level text logger on stdout.
func Component(name string) *slog.Logger {
	mu.Lock()
	if Logger == nil {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
		slog.SetDefault(Logger)
	}
	l := Logger
	mu.Unlock()
	return l.With("component", name)
}

// ParseLevel maps debug/info/warn/error (case-insensitive) to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
