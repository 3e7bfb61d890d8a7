// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
//
// Leveled logging sink shared by the reactor, connections, and servers.
// Backed by zerolog; the fatal level records and then runs the process exit hook.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
)

// Level is the severity of a record.
type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
	LevelFatal
)

// String returns the lowercase level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// ParseLevel maps a configuration string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	}
	return LevelInfo, fmt.Errorf("%w: unknown log level %q", api.ErrInvalidArgument, s)
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelFatal:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger records leveled messages with structured context fields.
type Logger struct {
	z zerolog.Logger
}

// New creates a JSON logger writing to w, dropping records below level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{z: zerolog.New(w).Level(level.zerolog()).With().Timestamp().Logger()}
}

// NewConsole creates a human-readable logger writing to w.
func NewConsole(w io.Writer, level Level) *Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: api.TimestampLayout, NoColor: true}
	return New(cw, level)
}

// Nop returns a logger that discards everything except the fatal exit hook.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

// With returns a child logger that attaches key=value to every record.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{z: l.z.With().Interface(key, value).Logger()}
}

// Enabled reports whether records at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l.z.GetLevel() <= level.zerolog()
}

// Record writes message at level. A fatal record runs the exit hook afterwards.
func (l *Logger) Record(level Level, message string) {
	l.z.WithLevel(level.zerolog()).Msg(message)
	if level == LevelFatal {
		runExitHook()
	}
}

// Debugf formats and records at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.Enabled(LevelDebug) {
		return
	}
	l.Record(LevelDebug, fmt.Sprintf(format, args...))
}

// Infof formats and records at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.Record(LevelInfo, fmt.Sprintf(format, args...))
}

// Errorf formats and records at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.Record(LevelError, fmt.Sprintf(format, args...))
}

// Fatalf formats, records at fatal level, and terminates via the exit hook.
func (l *Logger) Fatalf(format string, args ...any) {
	l.Record(LevelFatal, fmt.Sprintf(format, args...))
}

var (
	defaultLogger atomic.Pointer[Logger]
	exitHook      atomic.Pointer[func()]
)

func init() {
	defaultLogger.Store(NewConsole(os.Stderr, LevelInfo))
	osExit := func() { os.Exit(1) }
	exitHook.Store(&osExit)
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// SetExitHook replaces what a fatal record does after logging and returns a
// function restoring the previous hook. Tests install a hook that panics.
func SetExitHook(fn func()) (restore func()) {
	prev := exitHook.Swap(&fn)
	return func() { exitHook.Store(prev) }
}

func runExitHook() {
	(*exitHook.Load())()
}
