/**
 * Logger for the Box fixer
 *
 * Structured logging on top of zerolog: leveled key-value output, optional
 * pretty console rendering for interactive runs, and plain JSON for batch
 * runs whose output lands in a file.
 *
 * Author: box-fixer team
 */

package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with key-value pair helpers.
type Logger struct {
	logger zerolog.Logger
	config *Config
}

// Config configures logger behavior.
type Config struct {
	Output     io.Writer
	Level      string
	TimeFormat string
	Pretty     bool
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = &Config{
	Level:      "info",
	Output:     os.Stdout,
	Pretty:     false,
	TimeFormat: time.RFC3339,
}

// New creates a new logger instance.
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig
	}

	var output = config.Output
	if output == nil {
		output = os.Stdout
	}
	if config.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: config.TimeFormat,
		}
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &Logger{
		logger: zl,
		config: config,
	}
}

// With creates a child logger with an additional field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		logger: l.logger.With().Interface(key, value).Logger(),
		config: l.config,
	}
}

// Trace logs a trace message.
func (l *Logger) Trace(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Trace(), msg, fields...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Debug(), msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Info(), msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.logEvent(l.logger.Warn(), msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string, fields ...interface{}) {
	event := l.logger.Error()
	if err != nil {
		event = event.Err(err)
	}
	l.logEvent(event, msg, fields...)
}

// Critical logs an error message flagged as critical. zerolog has no level
// between error and fatal, so critical rides on the error level with a marker
// field instead of terminating the process.
func (l *Logger) Critical(err error, msg string, fields ...interface{}) {
	event := l.logger.Error().Bool("critical", true)
	if err != nil {
		event = event.Err(err)
	}
	l.logEvent(event, msg, fields...)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string, fields ...interface{}) {
	event := l.logger.Fatal()
	if err != nil {
		event = event.Err(err)
	}
	l.logEvent(event, msg, fields...)
}

// LogAt dispatches to the handler for a level name. Unknown levels log at
// info so a mistyped level never swallows a message.
func (l *Logger) LogAt(level, msg string, fields ...interface{}) {
	switch level {
	case "trace":
		l.Trace(msg, fields...)
	case "debug":
		l.Debug(msg, fields...)
	case "warn", "warning":
		l.Warn(msg, fields...)
	case "error":
		l.Error(nil, msg, fields...)
	case "critical":
		l.Critical(nil, msg, fields...)
	default:
		l.Info(msg, fields...)
	}
}

// SetLevel changes the logger level dynamically.
func (l *Logger) SetLevel(level string) error {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	l.logger = l.logger.Level(parsed)
	return nil
}

// logEvent processes field pairs and sends the log event.
func (l *Logger) logEvent(event *zerolog.Event, msg string, fields ...interface{}) {
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, fields[i+1])
	}
	event.Msg(msg)
}

// NewDevelopmentConfig creates a config suitable for interactive use.
func NewDevelopmentConfig() *Config {
	return &Config{
		Level:      "debug",
		Output:     os.Stdout,
		Pretty:     true,
		TimeFormat: "15:04:05",
	}
}

// NewProductionConfig creates a config suitable for batch runs.
func NewProductionConfig() *Config {
	return &Config{
		Level:      "info",
		Output:     os.Stdout,
		Pretty:     false,
		TimeFormat: time.RFC3339,
	}
}
