package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// SystemTraceID marks entries written outside any cart operation (startup, shutdown).
	SystemTraceID = "system"
	// SystemSpanID pairs with SystemTraceID.
	SystemSpanID = "system"
)

// Options controls how the base logger is built.
type Options struct {
	Service string
	Env     string
	// Level is a zap level name; unknown values fall back to info.
	Level string
	// LogFile, when set, receives a copy of every entry.
	LogFile string
}

// NewLogger returns a JSON logger writing to stdout and, optionally, to a file.
// Each entry carries the service and environment identifiers.
func NewLogger(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	if opts.LogFile != "" {
		file, err := openLogFile(opts.LogFile)
		if err != nil {
			return nil, fmt.Errorf("logging: open %s: %w", opts.LogFile, err)
		}
		sinks = append(sinks, zapcore.Lock(file))
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.NewMultiWriteSyncer(sinks...),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(
			zap.String("service", opts.Service),
			zap.String("env", opts.Env),
		),
	), nil
}

// MustNewLogger panics when the logger cannot be created.
func MustNewLogger(opts Options) *zap.Logger {
	logger, err := NewLogger(opts)
	if err != nil {
		panic(err)
	}
	return logger
}

// WithTrace pins trace_id and span_id on logger. Empty values become "unknown".
func WithTrace(logger *zap.Logger, traceID, spanID string) *zap.Logger {
	if logger == nil {
		logger = zap.L()
	}
	return logger.With(
		zap.String("trace_id", orUnknown(traceID)),
		zap.String("span_id", orUnknown(spanID)),
	)
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.MessageKey = "msg"
	cfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
