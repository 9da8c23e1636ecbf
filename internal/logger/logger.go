package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/otplogin/internal/constants"
)

// InitLogger initializes and configures the application logger based on environment.
// Development gets debug level with source locations; logJSON selects the JSON handler.
func InitLogger(environment string, logJSON bool) *slog.Logger {
	logger := New(os.Stdout, environment, logJSON)

	// Set as default logger so it can be used throughout the application
	slog.SetDefault(logger)

	return logger
}

// New builds a logger writing to w without touching the default logger
func New(w io.Writer, environment string, logJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if environment == constants.EnvironmentDevelopment {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}

	var handler slog.Handler
	if logJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
