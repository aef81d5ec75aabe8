// Package logging provides structured leveled logging for the extractor.
// It keeps the teacher's Logger/FieldLogger API (Debug/Info/Warn/Error with
// a field map, WithFields for scoped child loggers) but is backed by
// github.com/rs/zerolog instead of a hand-rolled JSON formatter, matching
// how the corpus (ManuGH-xg2g) handles this concern.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Logger provides structured logging.
type Logger struct {
	zl     zerolog.Logger
	file   *os.File
	format string
}

// NewLogger creates a new logger writing to stdout and, optionally, a file.
func NewLogger(level string, format string, outputPath string) (*Logger, error) {
	var writers []io.Writer
	if format == "json" {
		writers = append(writers, os.Stdout)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05Z07:00"})
	}

	l := &Logger{format: format}

	if outputPath != "" && outputPath != "-" {
		dir := filepath.Dir(outputPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		l.file = f
		writers = append(writers, f)
	}

	zl := zerolog.New(io.MultiWriter(writers...)).With().Timestamp().Logger().Level(parseLevel(level))
	l.zl = zl

	return l, nil
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Close closes the log file, if one was opened.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) event(level zerolog.Level, message string, fields map[string]interface{}) {
	ev := l.zl.WithLevel(level)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(message)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.event(zerolog.DebugLevel, message, fields)
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.event(zerolog.InfoLevel, message, fields)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.event(zerolog.WarnLevel, message, fields)
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.event(zerolog.ErrorLevel, message, fields)
}

// WithFields returns a child logger with default fields attached to every
// subsequent entry.
func (l *Logger) WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{logger: l, fields: fields}
}

// FieldLogger is a logger with preset fields.
type FieldLogger struct {
	logger *Logger
	fields map[string]interface{}
}

func (fl *FieldLogger) merged(additional map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(fl.fields)+len(additional))
	for k, v := range fl.fields {
		merged[k] = v
	}
	for k, v := range additional {
		merged[k] = v
	}
	return merged
}

// Debug logs a debug message with the scoped fields merged in.
func (fl *FieldLogger) Debug(message string, fields map[string]interface{}) {
	fl.logger.event(zerolog.DebugLevel, message, fl.merged(fields))
}

// Info logs an info message with the scoped fields merged in.
func (fl *FieldLogger) Info(message string, fields map[string]interface{}) {
	fl.logger.event(zerolog.InfoLevel, message, fl.merged(fields))
}

// Warn logs a warning message with the scoped fields merged in.
func (fl *FieldLogger) Warn(message string, fields map[string]interface{}) {
	fl.logger.event(zerolog.WarnLevel, message, fl.merged(fields))
}

// Error logs an error message with the scoped fields merged in.
func (fl *FieldLogger) Error(message string, fields map[string]interface{}) {
	fl.logger.event(zerolog.ErrorLevel, message, fl.merged(fields))
}
