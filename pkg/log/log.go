// Package log configures the process-wide structured logger.
package log

import (
	"log/slog"
	"os"
)

// serviceAttr tags every line so engine and admin output can be told apart
// from the generation backend's in shared log streams.
const serviceAttr = "inkwell"

// Setup installs the default slog logger at the given level. Unknown level
// strings fall back to info.
func Setup(logLevel string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	})

	slog.SetDefault(slog.New(handler).With("service", serviceAttr))
}

func parseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule returns a logger tagged with the originating module name.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// WithExecution tags a logger with the execution correlation field carried
// through every engine log line for that run.
func WithExecution(logger *slog.Logger, executionID string) *slog.Logger {
	return logger.With("execution_id", executionID)
}
