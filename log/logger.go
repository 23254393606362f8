// Package log provides structured logging with server instance context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the server core (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with instance context.
// Every entry carries the instance_id of the server process, and a
// component field once With has been called.
//
// A nil *Logger is valid and discards everything.
type Logger struct {
	zap        *zap.Logger
	instanceID string
	component  string
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// Options configures a Logger.
type Options struct {
	// InstanceID identifies this process. Generated when empty.
	InstanceID string
	// Level is the minimum level: debug, info, warn or error. Defaults to info.
	Level string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger creates a logger writing JSON lines.
func NewLogger(opts Options) *Logger {
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	core := newCore(opts.Output, parseLevel(opts.Level))
	zapLogger := zap.New(core).With(zap.String("instance_id", opts.InstanceID))
	return &Logger{zap: zapLogger, instanceID: opts.InstanceID}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func newCore(w io.Writer, level zapcore.Level) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
}

func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return level
}

// InstanceID returns the instance id attached to every entry.
func (l *Logger) InstanceID() string {
	if l == nil {
		return ""
	}
	return l.instanceID
}

// With returns a child logger tagged with a component name.
func (l *Logger) With(component string) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{
		zap:        l.zap.With(zap.String("component", component)),
		instanceID: l.instanceID,
		component:  component,
	}
}

// WithOutput returns a new logger at debug level writing to w.
// Instance and component context is preserved.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	if l == nil {
		return Nop()
	}
	fields := []zap.Field{zap.String("instance_id", l.instanceID)}
	if l.component != "" {
		fields = append(fields, zap.String("component", l.component))
	}
	return &Logger{
		zap:        zap.New(newCore(w, zapcore.DebugLevel)).With(fields...),
		instanceID: l.instanceID,
		component:  l.component,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	if l == nil {
		return
	}
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	if l == nil {
		return Nop().Sugar()
	}
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
