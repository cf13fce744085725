// Package logger is the structured diagnostics log of energy-stream.
//
// The terminal belongs to the dashboard, so the default level is "warn" and
// File can move the JSON stream off stderr entirely.
package logger

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const DefaultLevel = "warn"

// Config описывает, как инициализировать zap-логгер.
// Level   - "debug" | "info" | "warn" | "error" (по умолчанию "warn")
// DevMode - true → человекочитаемый консольный вывод, иначе JSON.
// File    - путь к файлу логов; пусто → stderr.
type Config struct {
	Level   string
	DevMode bool
	File    string
}

func (c *Config) applyDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
}

func (c Config) validate() error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("logger: invalid level %q: %w", c.Level, err)
	}
	return nil
}

// Logger wraps two views of one zap core: the sampled one for hot paths
// (frames, pings) and the full one for records that must never be dropped.
type Logger struct {
	raw  *zap.Logger
	full *zap.Logger
}

// New создаёт Logger по заданному Config.
func New(cfg Config) (*Logger, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	zapCfg := buildZapConfig(cfg.DevMode, cfg.File)
	if err := setZapLevel(&zapCfg, cfg.Level); err != nil {
		return nil, err
	}

	full, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger: build zap: %w", err)
	}
	raw := full
	if !cfg.DevMode {
		raw = full.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(c, time.Second, samplingInitial, samplingThereafter)
		}))
	}
	return &Logger{raw: raw, full: full}, nil
}

// NewNop возвращает логгер, который ничего не пишет. Удобно в тестах.
func NewNop() *Logger {
	return FromZap(zap.NewNop())
}

// FromZap оборачивает готовый *zap.Logger (например, zaptest/observer).
// Семплирования нет: обе ветки пишут в один и тот же логгер.
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{raw: zl, full: zl}
}

// Sync сбрасывает все буферы (ошибки игнорируются).
func (l *Logger) Sync() { _ = l.full.Sync() }

func (l *Logger) Named(name string) *Logger {
	return &Logger{raw: l.raw.Named(name), full: l.full.Named(name)}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{raw: l.raw.With(fields...), full: l.full.With(fields...)}
}

// Unsampled returns a logger that bypasses sampling. The activity journal
// mirrors through it so that repeated lines are not silently dropped.
func (l *Logger) Unsampled() *Logger {
	return &Logger{raw: l.full, full: l.full}
}

// ForConnection tags every record with the WebSocket connection id that
// the session status issued on connect.
func (l *Logger) ForConnection(id string) *Logger {
	return l.With(zap.String("connection_id", id))
}

// WithContext добавляет trace_id и span_id активного span'а (session.Run).
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// Уровни
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.raw.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.raw.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.raw.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.raw.Error(msg, fields...) }
