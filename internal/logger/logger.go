// Package logger provides structured logging configuration using log/slog.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Supported output formats.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Config holds logger configuration.
type Config struct {
	Level  slog.Level
	Format string    // "text", "json" or "pretty"
	Output io.Writer // defaults to os.Stderr
}

// NewLogger creates a configured slog.Logger.
func NewLogger(cfg Config) *slog.Logger {
	var handler slog.Handler

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level: cfg.Level,
		// Add a source location for debug and error levels
		AddSource: cfg.Level <= slog.LevelDebug,
	}

	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	case FormatPretty:
		handler = newPrettyHandler(out, cfg.Level)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// ParseLevel parses DEBUG, INFO, WARN, WARNING or ERROR (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// DefaultConfig returns the default logger configuration.
// Parses the DTUNE_LOG_LEVEL environment variable to set the log level.
// Valid values: DEBUG, INFO, WARN, WARNING, ERROR
// Default: INFO
func DefaultConfig() Config {
	level := slog.LevelInfo

	if envLevel := os.Getenv("DTUNE_LOG_LEVEL"); envLevel != "" {
		if parsed, err := ParseLevel(envLevel); err == nil {
			level = parsed
		}
	}

	return Config{
		Level:  level,
		Format: FormatText,
	}
}
