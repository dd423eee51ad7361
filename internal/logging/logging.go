package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment variables read by Init.
const (
	EnvJSON  = "AOBGEN_JSON_LOG"
	EnvLevel = "AOBGEN_LOG_LEVEL"
)

// Init configures the global slog logger writing to stderr. The handler is
// JSON if AOBGEN_JSON_LOG is 1/true/json, text otherwise. debug forces the
// debug level regardless of AOBGEN_LOG_LEVEL.
func Init(name string, debug bool) *slog.Logger {
	return InitWriter(os.Stderr, name, debug)
}

// InitWriter is like Init but writes to w.
func InitWriter(w io.Writer, name string, debug bool) *slog.Logger {
	level := levelFromEnv()
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonFromEnv() {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("app", name)
	slog.SetDefault(logger)
	return logger
}

func jsonFromEnv() bool {
	switch strings.ToLower(os.Getenv(EnvJSON)) {
	case "1", "true", "json":
		return true
	default:
		return false
	}
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(EnvLevel)) {
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
