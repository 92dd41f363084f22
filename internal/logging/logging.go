// Package logging provides the structured logger every component takes a
// dependency on, shaped after the teacher's log_service.LogService
// interface but backed by zap instead of a hand-rolled file writer - the
// teacher's go.mod already names go.uber.org/zap as a dependency, it is
// simply never imported; this package is where it gets used.
package logging

import (
	"go.uber.org/zap"
)

// Event is one structured log entry. Fields carry structured context
// instead of string concatenation.
type Event struct {
	Message string
	Fields  map[string]any
}

// Logger is the interface every component depends on; Debug/Info/Warn/Error
// mirror the teacher's log_service.LogService levels exactly.
type Logger interface {
	Debug(e Event)
	Info(e Event)
	Warn(e Event)
	Error(e Event)
	// With returns a Logger that prefixes every event with the given
	// static fields (e.g. component name, node id).
	With(fields map[string]any) Logger
}

type zapLogger struct {
	z      *zap.Logger
	static map[string]any
}

// New builds a production zap-backed Logger. component is attached as a
// static field on every event.
func New(component string) Logger {
	z, err := zap.NewProduction()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{z: z, static: map[string]any{"component": component}}
}

// NewDevelopment builds a human-readable console logger, useful for cmd/
// mains run interactively.
func NewDevelopment(component string) Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		z = zap.NewNop()
	}
	return &zapLogger{z: z, static: map[string]any{"component": component}}
}

func (l *zapLogger) fields(e Event) []zap.Field {
	fields := make([]zap.Field, 0, len(l.static)+len(e.Fields))
	for k, v := range l.static {
		fields = append(fields, zap.Any(k, v))
	}
	for k, v := range e.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

func (l *zapLogger) Debug(e Event) { l.z.Debug(e.Message, l.fields(e)...) }
func (l *zapLogger) Info(e Event)  { l.z.Info(e.Message, l.fields(e)...) }
func (l *zapLogger) Warn(e Event)  { l.z.Warn(e.Message, l.fields(e)...) }
func (l *zapLogger) Error(e Event) { l.z.Error(e.Message, l.fields(e)...) }

func (l *zapLogger) With(fields map[string]any) Logger {
	merged := make(map[string]any, len(l.static)+len(fields))
	for k, v := range l.static {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &zapLogger{z: l.z, static: merged}
}

type noopLogger struct{}

// Noop returns a Logger that discards everything, used as the zero-value
// default so components never need a nil check.
func Noop() Logger { return noopLogger{} }

func (noopLogger) Debug(Event)                  {}
func (noopLogger) Info(Event)                   {}
func (noopLogger) Warn(Event)                   {}
func (noopLogger) Error(Event)                  {}
func (noopLogger) With(map[string]any) Logger   { return noopLogger{} }
