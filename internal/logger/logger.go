// Package logger provides leveled logging for the kbengine CLI and MCP server.
// Warnings and errors are always printed to stderr. When verbose mode is
// enabled via the --verbose flag, debug and info messages are printed too,
// to help users follow the ingestion and retrieval pipelines.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured key-value pairs attached to a log entry.
type Fields = logrus.Fields

var (
	mu      sync.RWMutex
	verbose bool
	level             = logrus.WarnLevel
	output  io.Writer = os.Stderr
	file    *os.File
	base    = newBase()
)

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&plainFormatter{})
	l.SetLevel(logrus.WarnLevel)
	return l
}

// Options configures the logger backend.
type Options struct {
	// Level is a logrus level name (debug, info, warn, error).
	Level string

	// Format is "text" or "json".
	Format string

	// File, when set, receives log output instead of stderr.
	File string
}

// Configure applies level, format and output file settings.
// Verbose mode still overrides the level with debug.
func Configure(opts Options) error {
	if opts.Level != "" {
		if err := SetLevel(opts.Level); err != nil {
			return err
		}
	}
	if err := SetFormat(opts.Format); err != nil {
		return err
	}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		mu.Lock()
		if file != nil {
			_ = file.Close()
		}
		file = f
		mu.Unlock()
		SetOutput(f)
	}
	return nil
}

// Close releases the log file opened by Configure, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	output = os.Stderr
	base.SetOutput(os.Stderr)
	return err
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	applyLevel()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetLevel sets the minimum level logged outside verbose mode.
func SetLevel(name string) error {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	applyLevel()
	return nil
}

// applyLevel must be called with mu held.
func applyLevel() {
	if verbose {
		base.SetLevel(logrus.DebugLevel)
		return
	}
	base.SetLevel(level)
}

// SetFormat selects plain text ("text" or empty) or JSON output.
func SetFormat(format string) error {
	switch format {
	case "", "text":
		base.SetFormatter(&plainFormatter{})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base.SetOutput(w)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	base.Debugf(format, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// Info prints an informational message.
func Info(format string, args ...any) {
	base.Infof(format, args...)
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	base.Warnf(format, args...)
}

// Error prints an error message.
func Error(format string, args ...any) {
	base.Errorf(format, args...)
}

// Entry is a log entry carrying structured fields.
type Entry struct {
	entry *logrus.Entry
}

// WithFields returns an entry that attaches fields to every message.
func WithFields(fields Fields) *Entry {
	return &Entry{entry: base.WithFields(fields)}
}

// Debug logs at debug level.
func (e *Entry) Debug(format string, args ...any) { e.entry.Debugf(format, args...) }

// Info logs at info level.
func (e *Entry) Info(format string, args ...any) { e.entry.Infof(format, args...) }

// Warn logs at warning level.
func (e *Entry) Warn(format string, args ...any) { e.entry.Warnf(format, args...) }

// Error logs at error level.
func (e *Entry) Error(format string, args ...any) { e.entry.Errorf(format, args...) }

// plainFormatter renders "[LEVEL] message key=value" lines.
type plainFormatter struct{}

func (plainFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("[")
	b.WriteString(levelTag(e.Level))
	b.WriteString("] ")
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelTag(l logrus.Level) string {
	if l == logrus.WarnLevel {
		return "WARN"
	}
	return strings.ToUpper(l.String())
}
