package logx

import (
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// callerSkip makes zerolog report the frame that called Info, Warn, ...
const callerSkip = 2

var setupOnce sync.Once

// setupGlobals sets the process-wide zerolog knobs once.
func setupGlobals() {
	setupOnce.Do(func() {
		zerolog.ErrorFieldName = "err"
		zerolog.TimeFieldFormat = consoleTimeFormat
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			return filepath.Base(file) + ":" + strconv.Itoa(line)
		}
	})
}

// Logger is a value type; copies are cheap and With never mutates the
// receiver. A Logger obtained from a Service follows every later Apply.
// The zero value drops everything.
type Logger struct {
	svc    *Service
	fixed  *zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{fixed: &zl}
}

// NewConsole is a standalone console logger for use before the Service
// exists.
func NewConsole(level string) Logger {
	setupGlobals()
	zl := zerolog.New(newConsoleWriter(Stdout())).
		Level(parseLevel(level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	return Logger{fixed: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.fixed == nil && len(l.fields) == 0 }

func (l Logger) target() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.fixed != nil:
		return *l.fixed
	default:
		return zerolog.Nop()
	}
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	l.fields = append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...)
	return l
}

func (l Logger) Trace(msg string, fields ...Field) { l.emit(zerolog.TraceLevel, msg, fields) }
func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.target()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	e = e.Caller(callerSkip)
	for _, group := range [][]Field{l.fields, fields} {
		for _, f := range group {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}

// parseLevel accepts zerolog level names plus "warning"; anything else
// yields def.
func parseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}
