package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with application-specific methods
type Logger struct {
	zerolog.Logger
}

// New creates a new Logger instance
func New(level string, format string) *Logger {
	// Set global log level
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var logger zerolog.Logger

	if format == "text" || format == "console" {
		// Human-readable output for interactive use
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		// JSON output for automation
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return &Logger{Logger: logger}
}

// WithComponent returns a new logger with the component name attached
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With().Str("component", component).Logger(),
	}
}

// WithSpreadsheet returns a new logger with the spreadsheet ID attached
func (l *Logger) WithSpreadsheet(spreadsheetID string) *Logger {
	return &Logger{
		Logger: l.With().Str("spreadsheet_id", spreadsheetID).Logger(),
	}
}
