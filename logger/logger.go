// Package logger defines the injectable logging sink used across the SDK.
// Nothing in the SDK writes to a global logger or to the console directly.
package logger

// Logger is a minimal structured logging interface. Field maps keep the SDK
// decoupled from any particular logging backend.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger discards everything. It is the default sink.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
