// Package logger is a leveled logger handle. It is built once and passed to whatever
// needs it; there is no process-wide instance.
package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

type Level uint32

const (
	Silent Level = iota
	Error
	Warn
	Info
	Debug
)

func (l Level) String() string {
	switch l {
	case Silent:
		return "silent"
	case Error:
		return "error"
	case Warn:
		return "warn"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel accepts the names returned by Level.String.
func ParseLevel(name string) (Level, error) {
	for l := Silent; l <= Debug; l++ {
		if l.String() == name {
			return l, nil
		}
	}

	return Silent, fmt.Errorf("logger: unknown level %q", name)
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Error:
		return zerolog.ErrorLevel
	case Warn:
		return zerolog.WarnLevel
	case Info:
		return zerolog.InfoLevel
	case Debug:
		return zerolog.DebugLevel
	default:
		return zerolog.Disabled
	}
}

// Logger writes messages at or below its level. A nil *Logger discards everything.
type Logger struct {
	zl    zerolog.Logger
	level atomic.Uint32
}

// New returns a logger writing human-readable lines to w.
func New(w io.Writer, level Level) *Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}

	l := &Logger{zl: zerolog.New(out).With().Timestamp().Logger()}
	l.SetLevel(level)

	return l
}

func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(uint32(level))
}

func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether a message at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level > Silent && level <= Debug && level <= l.Level()
}

func (l *Logger) Log(level Level, message string) {
	if !l.Enabled(level) {
		return
	}

	l.zl.WithLevel(level.zerolog()).Msg(message)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(Error, format, args)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(Warn, format, args)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(Info, format, args)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(Debug, format, args)
}

func (l *Logger) logf(level Level, format string, args []interface{}) {
	if !l.Enabled(level) {
		return
	}

	l.zl.WithLevel(level.zerolog()).Msg(fmt.Sprintf(format, args...))
}
