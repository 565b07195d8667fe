package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/config"
)

// serviceName is attached to every record as the "service" attribute.
const serviceName = "fleetrunner"

// Logger wraps slog.Logger with fleetrunner-specific functionality.
//
// It provides structured logging with default fields and level-based filtering.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON or text)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	return &Logger{
		Logger: slog.New(withDefaults(consoleHandler(cfg), version)),
	}
}

// NewRun creates the logger used for the duration of a test run.
//
// Records at error level are appended to errLog. They reach the console only
// when verbose is set, every other record goes to the console as usual.
// A nil errLog sends everything to the console.
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Application version for default field
//   - errLog: Destination of the error log, usually from OpenErrorLog
//   - verbose: Mirror error records to the console
//
// Returns:
//   - *Logger: Configured logger ready for use
func NewRun(cfg config.LoggingConfig, version string, errLog io.Writer, verbose bool) *Logger {
	console := consoleHandler(cfg)
	if errLog == nil {
		return &Logger{Logger: slog.New(withDefaults(console, version))}
	}

	handler := &runHandler{
		console: console,
		errLog: slog.NewTextHandler(errLog, &slog.HandlerOptions{
			Level: slog.LevelError,
		}),
		verbose: verbose,
	}

	return &Logger{
		Logger: slog.New(withDefaults(handler, version)),
	}
}

// OpenErrorLog opens the append-only error log, creating it and its parent
// directory when missing.
func OpenErrorLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating error log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // path comes from the workspace layout
	if err != nil {
		return nil, fmt.Errorf("opening error log: %w", err)
	}
	return f, nil
}

func consoleHandler(cfg config.LoggingConfig) slog.Handler {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.NewJSONHandler(output, opts)
	default:
		return slog.NewTextHandler(output, opts)
	}
}

func withDefaults(h slog.Handler, version string) slog.Handler {
	return h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
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
//	devLogger := logger.With("component", "appium", "udid", d.UDID)
//	devLogger.Info("server started") // Includes component=appium
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}
