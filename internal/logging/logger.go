package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls how a Logger renders its output.
type Options struct {
	Debug   bool
	NoColor bool
	JSON    bool
	// Out defaults to os.Stderr.
	Out io.Writer
}

// Logger provides structured logging with redaction support
type Logger struct {
	entry *logrus.Entry
	debug bool
}

// New creates a new logger instance writing text to stderr
func New(debug, noColor bool) *Logger {
	return NewWithOptions(Options{Debug: debug, NoColor: noColor})
}

// NewWithOptions creates a logger from explicit options.
func NewWithOptions(opts Options) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	if opts.Out != nil {
		base.SetOutput(opts.Out)
	}

	if opts.JSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			DisableColors: opts.NoColor,
			FullTimestamp: true,
		})
	}

	base.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		base.SetLevel(logrus.DebugLevel)
	}

	return &Logger{
		entry: logrus.NewEntry(base),
		debug: opts.Debug,
	}
}

// Discard returns a logger that drops everything. Useful as a default
// when callers do not supply one.
func Discard() *Logger {
	return NewWithOptions(Options{Out: io.Discard, NoColor: true})
}

// With returns a child logger that attaches key=value to every message.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		entry: l.entry.WithField(key, value),
		debug: l.debug,
	}
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.entry.Debugf(format, args...)
}

// IsDebug reports whether debug messages are emitted.
func (l *Logger) IsDebug() bool {
	return l.debug
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
