// Package logger provides structured logging with consistent fields.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with a fixed component tag and a keyval-style API.
type Logger struct {
	base zerolog.Logger
}

// New creates a logger tagged with component, e.g. "oracle-poller".
func New(component string) *Logger {
	zerolog.DurationFieldUnit = time.Millisecond
	base := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", component).
		Logger().
		Level(zerolog.InfoLevel)
	return &Logger{base: base}
}

// With returns a derived logger tagged with additional fixed fields.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	ctx := l.base.With()
	m := kvToMap(keyvals...)
	for k, v := range m {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{base: ctx.Logger()}
}

func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.base.Debug().Fields(kvToMap(keyvals...)).Msg(msg)
}

func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.base.Info().Fields(kvToMap(keyvals...)).Msg(msg)
}

func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.base.Warn().Fields(kvToMap(keyvals...)).Msg(msg)
}

func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.base.Error().Fields(kvToMap(keyvals...)).Msg(msg)
}

func kvToMap(kv ...interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	return fields
}
