// Package logger provides the structured logging facade used across the
// server, backed by zerolog. Components receive a Logger and derive scoped
// loggers (per room, per session) with With.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field is a key-value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for constructing a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger writes leveled, structured log entries.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a derived Logger that includes the given fields in every
	// entry. The receiver is unchanged.
	With(fields ...Field) Logger
}

type zl struct {
	l zerolog.Logger
}

// New builds a Logger writing JSON entries to w, tagged with the service name
// and filtered by level.
func New(w io.Writer, service string, level zerolog.Level) Logger {
	return &zl{
		l: zerolog.New(w).With().Str("service", service).Timestamp().Logger().Level(level),
	}
}

// NewConsole builds a Logger writing human-readable entries to stderr.
// Unrecognized level names fall back to info.
func NewConsole(service, level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	w := zerolog.ConsoleWriter{Out: os.Stderr}
	return &zl{
		l: zerolog.New(w).With().Str("service", service).Timestamp().Logger().Level(lvl),
	}
}

// Nop returns a Logger that discards everything. Used in tests.
func Nop() Logger {
	return &zl{l: zerolog.Nop()}
}

func (z *zl) Debug(msg string, fields ...Field) { z.l.Debug().Fields(toMap(fields)).Msg(msg) }
func (z *zl) Info(msg string, fields ...Field)  { z.l.Info().Fields(toMap(fields)).Msg(msg) }
func (z *zl) Warn(msg string, fields ...Field)  { z.l.Warn().Fields(toMap(fields)).Msg(msg) }
func (z *zl) Error(msg string, fields ...Field) { z.l.Error().Fields(toMap(fields)).Msg(msg) }

func (z *zl) With(fields ...Field) Logger {
	return &zl{l: z.l.With().Fields(toMap(fields)).Logger()}
}

func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}
