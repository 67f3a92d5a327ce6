// Package logger adapts zap to the ports.Logger interface.
package logger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements ports.Logger on a zap.Logger.
type ZapLogger struct {
	l *zap.Logger
}

// New builds a production-configured zap logger at the given level
// ("debug", "info", "warn", "error").
func New(level string) (*ZapLogger, error) {
	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "", "info":
		lvl = zapcore.InfoLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &ZapLogger{l: l}, nil
}

// NewNop returns a logger that discards everything; used in tests.
func NewNop() *ZapLogger {
	return &ZapLogger{l: zap.NewNop()}
}

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() {
	_ = z.l.Sync()
}

func (z *ZapLogger) Debug(_ context.Context, msg string, fields ...map[string]interface{}) {
	z.l.Debug(msg, toZap(fields)...)
}

func (z *ZapLogger) Info(_ context.Context, msg string, fields ...map[string]interface{}) {
	z.l.Info(msg, toZap(fields)...)
}

func (z *ZapLogger) Warn(_ context.Context, msg string, fields ...map[string]interface{}) {
	z.l.Warn(msg, toZap(fields)...)
}

func (z *ZapLogger) Error(_ context.Context, err error, msg string, fields ...map[string]interface{}) {
	zf := toZap(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	z.l.Error(msg, zf...)
}

func toZap(fields []map[string]interface{}) []zap.Field {
	var out []zap.Field
	for _, m := range fields {
		for k, v := range m {
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
