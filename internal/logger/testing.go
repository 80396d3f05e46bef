package logger

import (
	"io"
	"log/slog"
	"os"
)

// TestLogEnv names the variable that sets the level of NewTestLogger,
// e.g. DTUNE_TEST_LOG=debug go test ./internal/service/...
const TestLogEnv = "DTUNE_TEST_LOG"

// NewTestLogger returns a text logger on stderr that only shows warnings
// unless TestLogEnv selects another level.
func NewTestLogger() *slog.Logger {
	return newTestLogger(os.Getenv(TestLogEnv), os.Stderr)
}

func newTestLogger(level string, out io.Writer) *slog.Logger {
	lvl := slog.LevelWarn
	if parsed, err := ParseLevel(level); err == nil && level != "" {
		lvl = parsed
	}
	return NewLogger(Config{Level: lvl, Format: FormatText, Output: out})
}
