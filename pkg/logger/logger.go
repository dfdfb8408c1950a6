// Package logger is the process-wide log fan-out. Backends are registered
// once with Init; package functions dispatch to every backend. Calls made
// before Init are dropped, which keeps package tests quiet.
package logger

import (
	"os"
	"sync/atomic"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	// With returns a backend that adds keyvals to every entry.
	With(keyvals ...any) LoggerInstance
}

// Logger dispatches entries to a fixed set of backends.
type Logger struct {
	instances []LoggerInstance
}

var singleton atomic.Pointer[Logger]

// exit is replaced in tests.
var exit = os.Exit

// Init replaces the global backends.
func Init(instances ...LoggerInstance) {
	singleton.Store(&Logger{instances: instances})
}

// With returns a logger that adds keyvals, usually the graph id or a
// message correlation id, to every entry. It captures the backends
// registered at call time; a With made before Init stays silent.
func With(keyvals ...any) *Logger {
	l := singleton.Load()
	if l == nil {
		return &Logger{}
	}
	return l.With(keyvals...)
}

func (l *Logger) With(keyvals ...any) *Logger {
	scoped := make([]LoggerInstance, len(l.instances))
	for i, inst := range l.instances {
		scoped[i] = inst.With(keyvals...)
	}
	return &Logger{instances: scoped}
}

func (l *Logger) log(level Level, message string, keyvals []any) {
	for _, inst := range l.instances {
		switch level {
		case DebugLevel:
			inst.Debug(message, keyvals...)
		case InfoLevel:
			inst.Info(message, keyvals...)
		case WarnLevel:
			inst.Warn(message, keyvals...)
		default:
			inst.Error(message, keyvals...)
		}
	}
}

func (l *Logger) Debug(message string, keyvals ...any) { l.log(DebugLevel, message, keyvals) }
func (l *Logger) Info(message string, keyvals ...any)  { l.log(InfoLevel, message, keyvals) }
func (l *Logger) Warn(message string, keyvals ...any)  { l.log(WarnLevel, message, keyvals) }
func (l *Logger) Error(message string, keyvals ...any) { l.log(ErrorLevel, message, keyvals) }

func dispatch(level Level, message string, keyvals []any) {
	if l := singleton.Load(); l != nil {
		l.log(level, message, keyvals)
	}
}

func Debug(message string, keyvals ...any) { dispatch(DebugLevel, message, keyvals) }
func Info(message string, keyvals ...any)  { dispatch(InfoLevel, message, keyvals) }
func Warn(message string, keyvals ...any)  { dispatch(WarnLevel, message, keyvals) }
func Error(message string, keyvals ...any) { dispatch(ErrorLevel, message, keyvals) }

// Fatal logs at ERROR level on every backend and exits with status 1, also
// when no backend is registered.
func Fatal(message string, keyvals ...any) {
	dispatch(ErrorLevel, message, keyvals)
	exit(1)
}
