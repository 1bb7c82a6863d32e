package workflow

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// ParseLevel maps a level name to a slog.Level. Unknown names read as info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// SetupLogger configures the application-wide logger.
// It uses "tint" for colorized, structured logging that is easy to read in terminals.
// Colour is dropped when stderr is redirected, and verbose forces debug level.
// Every line carries the backend it talks to and a run id.
func SetupLogger(level string, verbose bool, baseURL string) *slog.Logger {
	logLevel := ParseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}

	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:   logLevel,
		NoColor: !term.IsTerminal(int(os.Stderr.Fd())),
	})

	return slog.New(handler).With("base_url", baseURL, "run_id", NewRunID())
}

// NewRunID returns a fresh identifier for one command or job run.
func NewRunID() string {
	return "req-" + uuid.NewString()
}
