package utils

import (
	"io"
	"log"
	"os"
	"strings"
)

// Level controls which messages a Logger emits
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a config string to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a simple leveled logger for the application
type Logger struct {
	level    Level
	debugLog *log.Logger
	infoLog  *log.Logger
	warnLog  *log.Logger
	errorLog *log.Logger
}

// NewLogger creates a new logger writing info to stdout and errors to stderr
func NewLogger(level Level) *Logger {
	return NewLoggerWithWriters(level, os.Stdout, os.Stderr)
}

// NewLoggerWithWriters creates a logger with explicit destinations
func NewLoggerWithWriters(level Level, out, errOut io.Writer) *Logger {
	flags := log.Ldate | log.Ltime | log.Lmsgprefix
	return &Logger{
		level:    level,
		debugLog: log.New(out, "DEBUG: ", flags),
		infoLog:  log.New(out, "INFO: ", flags),
		warnLog:  log.New(errOut, "WARN: ", flags),
		errorLog: log.New(errOut, "ERROR: ", flags),
	}
}

// Discard returns a logger that drops everything, used by tests
func Discard() *Logger {
	return NewLoggerWithWriters(LevelError+1, io.Discard, io.Discard)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level <= LevelDebug {
		l.debugLog.Printf(format, v...)
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level <= LevelInfo {
		l.infoLog.Printf(format, v...)
	}
}

// Warn logs a warning
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level <= LevelWarn {
		l.warnLog.Printf(format, v...)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level <= LevelError {
		l.errorLog.Printf(format, v...)
	}
}
