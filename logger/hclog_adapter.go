package logger

import (
	"io"
	"log"

	"github.com/hashicorp/go-hclog"
)

// HCLogAdapter adapts Gatekeeper's Logger to implement hclog.Logger.
// This allows the logger to be used with libraries that require
// hclog.Logger, such as retryablehttp's request logging hook.
type HCLogAdapter struct {
	logger Logger
	name   string
	args   []interface{} // Implied args from With()
}

// Compile-time assertion that HCLogAdapter implements hclog.Logger
var _ hclog.Logger = (*HCLogAdapter)(nil)

// NewHCLogAdapter creates a new adapter for the given Logger
func NewHCLogAdapter(logger Logger) hclog.Logger {
	return &HCLogAdapter{
		logger: logger,
	}
}

// Log emits a message at the given level
func (a *HCLogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	fields := a.argsToFields(args)
	switch level {
	case hclog.Trace:
		a.logger.Trace(msg, fields...)
	case hclog.Debug:
		a.logger.Debug(msg, fields...)
	case hclog.Info:
		a.logger.Info(msg, fields...)
	case hclog.Warn:
		a.logger.Warn(msg, fields...)
	case hclog.Error:
		a.logger.Error(msg, fields...)
	default:
		a.logger.Info(msg, fields...)
	}
}

func (a *HCLogAdapter) Trace(msg string, args ...interface{}) {
	a.logger.Trace(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Debug(msg string, args ...interface{}) {
	a.logger.Debug(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Info(msg string, args ...interface{}) {
	a.logger.Info(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Warn(msg string, args ...interface{}) {
	a.logger.Warn(msg, a.argsToFields(args)...)
}

func (a *HCLogAdapter) Error(msg string, args ...interface{}) {
	a.logger.Error(msg, a.argsToFields(args)...)
}

// argsToFields converts hclog key/value pairs to TypedField slices.
// hclog uses alternating key/value pairs: ("key1", value1, "key2", value2, ...)
func (a *HCLogAdapter) argsToFields(args []interface{}) []TypedField {
	allArgs := append(a.args, args...)

	fields := make([]TypedField, 0, len(allArgs)/2)
	for i := 0; i < len(allArgs)-1; i += 2 {
		key, ok := allArgs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, Any(key, allArgs[i+1]))
	}
	return fields
}

// Named returns a logger with the specified name appended.
// Names are joined with "." when nested.
func (a *HCLogAdapter) Named(name string) hclog.Logger {
	newName := name
	if a.name != "" {
		newName = a.name + "." + name
	}
	return &HCLogAdapter{
		logger: a.logger.WithSubsystem(name),
		name:   newName,
		args:   a.args,
	}
}

// With returns a logger with the given key/value pairs as implied args.
func (a *HCLogAdapter) With(args ...interface{}) hclog.Logger {
	newArgs := make([]interface{}, len(a.args)+len(args))
	copy(newArgs, a.args)
	copy(newArgs[len(a.args):], args)
	return &HCLogAdapter{
		logger: a.logger,
		name:   a.name,
		args:   newArgs,
	}
}

// Name returns the current logger's name
func (a *HCLogAdapter) Name() string {
	return a.name
}

// ResetNamed returns a logger with the name set directly rather than
// appending to the current name.
func (a *HCLogAdapter) ResetNamed(name string) hclog.Logger {
	return &HCLogAdapter{
		logger: a.logger.WithSubsystem(name),
		name:   name,
		args:   a.args,
	}
}

func (a *HCLogAdapter) IsTrace() bool {
	return a.logger.IsLevelEnabled(TraceLevel)
}

func (a *HCLogAdapter) IsDebug() bool {
	return a.logger.IsLevelEnabled(DebugLevel)
}

func (a *HCLogAdapter) IsInfo() bool {
	return a.logger.IsLevelEnabled(InfoLevel)
}

func (a *HCLogAdapter) IsWarn() bool {
	return a.logger.IsLevelEnabled(WarnLevel)
}

func (a *HCLogAdapter) IsError() bool {
	return a.logger.IsLevelEnabled(ErrorLevel)
}

// GetLevel returns the lowest enabled level
func (a *HCLogAdapter) GetLevel() hclog.Level {
	switch {
	case a.logger.IsLevelEnabled(TraceLevel):
		return hclog.Trace
	case a.logger.IsLevelEnabled(DebugLevel):
		return hclog.Debug
	case a.logger.IsLevelEnabled(InfoLevel):
		return hclog.Info
	case a.logger.IsLevelEnabled(WarnLevel):
		return hclog.Warn
	case a.logger.IsLevelEnabled(ErrorLevel):
		return hclog.Error
	default:
		return hclog.NoLevel
	}
}

// SetLevel is a no-op; the level is fixed at construction time.
func (a *HCLogAdapter) SetLevel(level hclog.Level) {}

// ImpliedArgs returns the implied args from With()
func (a *HCLogAdapter) ImpliedArgs() []interface{} {
	return a.args
}

// StandardLogger returns a standard library logger that writes through
// this adapter at Info level.
func (a *HCLogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(a.StandardWriter(opts), "", 0)
}

// StandardWriter returns an io.Writer that logs at Info level.
func (a *HCLogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return &stdlogAdapter{adapter: a}
}

type stdlogAdapter struct {
	adapter *HCLogAdapter
}

func (s *stdlogAdapter) Write(p []byte) (int, error) {
	s.adapter.Info(string(p))
	return len(p), nil
}
