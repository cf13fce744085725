package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Семплинг накладывается в New поверх готового ядра, чтобы Unsampled
// мог писать в то же ядро без него.
const (
	samplingInitial    = 100
	samplingThereafter = 100
)

func buildZapConfig(dev bool, file string) zap.Config {
	var cfg zap.Config
	if dev {
		// dev-режим: консольный вывод, но с едиными ключами, как в prod
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.EncoderConfig.StacktraceKey = "stacktrace"
	}
	applyEncoderKeys(&cfg.EncoderConfig)

	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}
	return cfg
}

func applyEncoderKeys(ec *zapcore.EncoderConfig) {
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.CallerKey = "caller"
	ec.EncodeCaller = zapcore.ShortCallerEncoder
}

func setZapLevel(cfg *zap.Config, level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return err
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return nil
}
