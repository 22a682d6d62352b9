package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/imagepub/internal/infrastructure/config"
)

// Logger wraps slog.Logger with imagepub-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//     Broker callbacks log from library goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (text for terminals, JSON for log collectors)
//   - Log level filtering; debug forces the debug level
//   - Default fields (service name, version)
//   - Output destination
//
// Parameters:
//   - cfg: Logging configuration
//   - debug: The --debug flag
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, debug bool, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	return newWithWriter(output, cfg, debug, version)
}

// newWithWriter builds the logger on an arbitrary writer.
func newWithWriter(output io.Writer, cfg config.LoggingConfig, debug bool, version string) *Logger {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "imagepub"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	mqttLogger := logger.With("component", "mqtt5")
//	mqttLogger.Info("connected") // Includes component=mqtt5
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before configuration is loaded.
// It writes text to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
	}, false, "dev")
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
