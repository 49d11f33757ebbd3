// Package logging provides structured logging for the glidein submission tools.
//
// It wraps Go's standard log/slog package with:
//   - Destination-based filtering (HTTP, Collector, Submit, Workspace, ...)
//   - Verbosity levels (Error, Warn, Info, Debug)
//   - Configuration from the tool's config files
//
// A nil *Logger is valid and discards everything, so components can take an
// optional logger without nil checks at every call site.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bbockelm/golang-glidein/config"
)

// Verbosity levels for logging
type Verbosity int

// Verbosity levels for logging.
const (
	// VerbosityError logs only error messages
	VerbosityError Verbosity = iota
	// VerbosityWarn logs warnings and errors
	VerbosityWarn
	// VerbosityInfo logs informational messages, warnings, and errors
	VerbosityInfo
	// VerbosityDebug logs all messages including debug information
	VerbosityDebug
)

// Destination represents where logs should be written
type Destination int

// Destination categories for log filtering.
const (
	DestinationGeneral   Destination = iota // General application logs
	DestinationHTTP                         // HTTP server logs
	DestinationCollector                    // Collector queries and credential resolution
	DestinationSubmit                       // Environment synthesis, template patching, condor_submit
	DestinationWorkspace                    // Workspace allocation, archiving and sweeping
	DestinationSecurity                     // Key loading, validation, sessions
)

var destinationNames = map[Destination]string{
	DestinationGeneral:   "general",
	DestinationHTTP:      "http",
	DestinationCollector: "collector",
	DestinationSubmit:    "submit",
	DestinationWorkspace: "workspace",
	DestinationSecurity:  "security",
}

// Config holds logging configuration
type Config struct {
	// OutputPath is where logs are written ("stdout", "stderr", or file path)
	OutputPath string
	// MinVerbosity is the minimum verbosity level to log
	MinVerbosity Verbosity
	// EnabledDestinations specifies which destinations are enabled
	// If nil or empty, all destinations are enabled
	EnabledDestinations map[Destination]bool
	// Writer overrides OutputPath when set
	Writer io.Writer
}

// Logger wraps slog.Logger with destination and verbosity filtering
type Logger struct {
	config *Config
	logger *slog.Logger
}

// New creates a new Logger with the given configuration
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{
			OutputPath:   "stderr",
			MinVerbosity: VerbosityInfo,
		}
	}

	writer := cfg.Writer
	if writer == nil {
		switch cfg.OutputPath {
		case "stdout":
			writer = os.Stdout
		case "stderr", "":
			writer = os.Stderr
		default:
			f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				return nil, err
			}
			writer = f
		}
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: cfg.MinVerbosity.level(),
	})

	return &Logger{
		config: cfg,
		logger: slog.New(handler),
	}, nil
}

// level converts our verbosity to the slog level
func (v Verbosity) level() slog.Level {
	switch v {
	case VerbosityError:
		return slog.LevelError
	case VerbosityWarn:
		return slog.LevelWarn
	case VerbosityDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// FromConfig creates a new Logger from configuration.
// It reads the following parameters:
//   - LOG: Output path (stdout, stderr, or file path). Defaults to stderr.
//   - LOG_VERBOSITY: Minimum verbosity level (ERROR, WARN, INFO, DEBUG). Defaults to INFO.
//   - LOG_DESTINATIONS: Comma-separated list of enabled destinations (GENERAL, HTTP,
//     COLLECTOR, SUBMIT, WORKSPACE, SECURITY). Defaults to all enabled.
//
// Example configuration:
//
//	LOG = /var/log/gwms-submit/web.log
//	LOG_VERBOSITY = DEBUG
//	LOG_DESTINATIONS = HTTP, SUBMIT
func FromConfig(cfg *config.Config) (*Logger, error) {
	if cfg == nil {
		return New(nil)
	}

	outputPath := cfg.GetDefault("LOG", "stderr")

	verbosity := VerbosityInfo
	if logVerbosity, ok := cfg.Get("LOG_VERBOSITY"); ok {
		verbosity = ParseVerbosity(logVerbosity)
	}

	var enabledDestinations map[Destination]bool
	if logDestinations, ok := cfg.Get("LOG_DESTINATIONS"); ok && logDestinations != "" {
		enabledDestinations = ParseDestinations(logDestinations)
	}

	return New(&Config{
		OutputPath:          outputPath,
		MinVerbosity:        verbosity,
		EnabledDestinations: enabledDestinations,
	})
}

// ParseVerbosity maps a verbosity name to its level, defaulting to info
func ParseVerbosity(s string) Verbosity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return VerbosityError
	case "WARN", "WARNING":
		return VerbosityWarn
	case "DEBUG":
		return VerbosityDebug
	default:
		return VerbosityInfo
	}
}

// ParseDestinations parses a comma-separated destination list. Unknown names are ignored.
func ParseDestinations(s string) map[Destination]bool {
	enabled := make(map[Destination]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		for dest, name := range destinationNames {
			if name == part {
				enabled[dest] = true
			}
		}
	}
	return enabled
}

// shouldLog checks if a log should be written based on destination filtering
func (l *Logger) shouldLog(dest Destination) bool {
	if l == nil {
		return false
	}
	if len(l.config.EnabledDestinations) == 0 {
		return true
	}
	return l.config.EnabledDestinations[dest]
}

// String returns the destination name used in log records
func (d Destination) String() string {
	if name, ok := destinationNames[d]; ok {
		return name
	}
	return "unknown"
}

// Error logs an error message
func (l *Logger) Error(dest Destination, msg string, args ...any) {
	if !l.shouldLog(dest) {
		return
	}
	l.logger.Error(msg, append([]any{"destination", dest.String()}, args...)...)
}

// Warn logs a warning message
func (l *Logger) Warn(dest Destination, msg string, args ...any) {
	if !l.shouldLog(dest) {
		return
	}
	l.logger.Warn(msg, append([]any{"destination", dest.String()}, args...)...)
}

// Info logs an info message
func (l *Logger) Info(dest Destination, msg string, args ...any) {
	if !l.shouldLog(dest) {
		return
	}
	l.logger.Info(msg, append([]any{"destination", dest.String()}, args...)...)
}

// Debug logs a debug message
func (l *Logger) Debug(dest Destination, msg string, args ...any) {
	if !l.shouldLog(dest) {
		return
	}
	l.logger.Debug(msg, append([]any{"destination", dest.String()}, args...)...)
}
