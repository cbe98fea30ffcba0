// Package logging wraps zerolog with subsystem-scoped child loggers.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// zerolog's global floor defaults to debug; per-logger levels decide instead.
func init() {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
}

// Logger wraps zerolog to provide subsystem-scoped child loggers.
type Logger struct {
	zl zerolog.Logger
}

// Options controls how a root logger writes.
type Options struct {
	Level        string
	ConsoleStyle string    // "pretty" | "json"
	File         io.Writer // optional extra JSON sink
}

// New creates a root logger writing to the given writer at the specified level.
// If w is nil, defaults to pretty console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(level))
	return &Logger{zl: zl}
}

// NewWithOptions builds a root logger for the server process: console output
// in the requested style, optionally teed to a JSON file sink.
func NewWithOptions(opts Options) *Logger {
	var console io.Writer = os.Stderr
	if opts.ConsoleStyle != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	out := console
	if opts.File != nil {
		out = zerolog.MultiLevelWriter(console, opts.File)
	}
	return New(out, opts.Level)
}

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return &Logger{zl: l.zl.With().Str("subsystem", subsystem).Logger()}
}

// With returns a child logger carrying an extra string field.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

// Trace logs at trace level. Per-frame detail goes here.
func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }

// Debug logs at debug level.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info logs at info level.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn logs at warn level.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error logs at error level.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger { return l.zl }

// Levels are the accepted level names, most verbose first.
var Levels = []string{"trace", "debug", "info", "warn", "error", "fatal", "silent"}

var levelByName = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
	"silent":  zerolog.Disabled,
}

// ValidLevel reports whether s names a level. Matching ignores case.
func ValidLevel(s string) bool {
	_, ok := levelByName[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// parseLevel maps a level name to zerolog, falling back to info.
func parseLevel(s string) zerolog.Level {
	if lvl, ok := levelByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}
