// Package logger provides the leveled logging sink used by memgate.
//
// The sink is process-wide. Until Init is called every logging call is a
// no-op, so library code can log unconditionally without requiring callers to
// configure anything. Shutdown flushes the sink and returns it to the no-op
// state.
package logger

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits one step below zap's DebugLevel.
const TraceLevel = zapcore.DebugLevel - 1

var (
	mu           sync.RWMutex
	globalLogger = zap.NewNop()
	initialized  bool
)

// Config represents logger configuration
type Config struct {
	Level       string   // error, warn, info, debug, trace
	Development bool     // colored console levels and stack traces on error
	Encoding    string   // json or console
	OutputPaths []string // defaults to stderr
}

// Init initializes the global logger. Only the first successful call takes
// effect until Shutdown is called.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}

	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	globalLogger = l
	initialized = true
	return nil
}

// InitVerbosity initializes the global logger from a verbosity count,
// 0 = error, 1 = warn, 2 = info, 3 = debug, 4 and above = trace.
func InitVerbosity(verbosity int) error {
	return Init(Config{Level: VerbosityLevel(verbosity), Encoding: "console"})
}

// VerbosityLevel maps a verbosity count to a level name.
func VerbosityLevel(verbosity int) string {
	switch {
	case verbosity <= 0:
		return "error"
	case verbosity == 1:
		return "warn"
	case verbosity == 2:
		return "info"
	case verbosity == 3:
		return "debug"
	default:
		return "trace"
	}
}

// ParseLevel parses a level name, accepting "trace" in addition to the zap
// level names.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.EqualFold(level, "trace") {
		return TraceLevel, nil
	}
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(level)
}

// newLogger creates a new zap logger
func newLogger(cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder(zapcore.LowercaseLevelEncoder),
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = levelEncoder(zapcore.CapitalColorLevelEncoder)
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// levelEncoder renders TraceLevel as "trace" and defers everything else.
func levelEncoder(next zapcore.LevelEncoder) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if l == TraceLevel {
			enc.AppendString("trace")
			return
		}
		next(l, enc)
	}
}

// Get returns the global logger. Before Init it is a no-op logger.
func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// Initialized reports whether Init has taken effect.
func Initialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return initialized
}

// Replace swaps the global logger, returning a function that restores the
// previous one. Intended for tests and embedding applications that own their
// own zap configuration.
func Replace(l *zap.Logger) func() {
	mu.Lock()
	prev, prevInit := globalLogger, initialized
	globalLogger, initialized = l, true
	mu.Unlock()

	return func() {
		mu.Lock()
		globalLogger, initialized = prev, prevInit
		mu.Unlock()
	}
}

// With creates a child logger with additional fields
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// Trace logs a trace message
func Trace(msg string, fields ...zap.Field) {
	Get().Log(TraceLevel, msg, fields...)
}

// TraceOn logs a trace message on a specific logger.
func TraceOn(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Log(TraceLevel, msg, fields...)
}

// Shutdown flushes buffered entries and resets the sink to a no-op.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()

	var err error
	if initialized {
		err = globalLogger.Sync()
		// Sync on a terminal or pipe fails on several platforms
		// See: https://github.com/uber-go/zap/issues/328
		if err != nil && (strings.Contains(err.Error(), "invalid argument") ||
			strings.Contains(err.Error(), "bad file descriptor") ||
			strings.Contains(err.Error(), "inappropriate ioctl")) {
			err = nil
		}
	}
	globalLogger = zap.NewNop()
	initialized = false
	return err
}
