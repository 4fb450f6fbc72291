package util

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger with printf-style helpers.
type Logger struct {
	mu    sync.Mutex
	entry *log.Logger
	file  *os.File
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the default logger instance.
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger("info", "")
	})
	return defaultLogger
}

// NewLogger creates a logger at the given level, also writing to filePath when set.
func NewLogger(level string, filePath string) *Logger {
	l := &Logger{entry: log.New()}

	writers := []io.Writer{os.Stdout}
	if filePath != "" {
		if err := EnsureDir(filepath.Dir(filePath)); err == nil {
			file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				l.file = file
				writers = append(writers, file)
			}
		}
	}

	l.entry.SetOutput(io.MultiWriter(writers...))
	l.entry.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	l.entry.SetLevel(ParseLevel(level))

	return l
}

// ParseLevel parses a string log level, defaulting to info.
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level string) {
	l.entry.SetLevel(ParseLevel(level))
}

// SetOutput redirects log output, mainly so the TUI can keep the terminal clean.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		w = io.MultiWriter(w, l.file)
	}
	l.entry.SetOutput(w)
}

// Close closes the log file if open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// WithField returns an entry carrying a structured field.
func (l *Logger) WithField(key string, value interface{}) *log.Entry {
	return l.entry.WithField(key, value)
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debug logs a debug message using the default logger.
func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Info logs an info message using the default logger.
func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warn logs a warning message using the default logger.
func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Error logs an error message using the default logger.
func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// WithField returns a default-logger entry carrying a structured field.
func WithField(key string, value interface{}) *log.Entry {
	return GetLogger().WithField(key, value)
}

// WithFields returns a default-logger entry carrying several structured fields.
func WithFields(fields log.Fields) *log.Entry {
	return GetLogger().entry.WithFields(fields)
}

// InitLogger initializes the default logger with config.
func InitLogger(level string, filePath string) {
	once.Do(func() {
		defaultLogger = NewLogger(level, filePath)
	})
}
