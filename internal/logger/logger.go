package logger

import (
	"medops-bknd/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

// New creates a zap logger configured by environment. Every entry carries the
// service name so logs from replicas can be merged.
func New(cfg *config.Config) *Logger {
	var zapCfg zap.Config

	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	l, err := zapCfg.Build(zap.Fields(
		zap.String("service", "medops-bknd"),
		zap.String("changefeed", cfg.ChangefeedSource),
	))
	if err != nil {
		panic(err)
	}

	return &Logger{l}
}

// For returns a child logger for one component, e.g. "monitor".
func (l *Logger) For(component string) *zap.Logger {
	return l.Logger.Named(component)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() {
	_ = l.Logger.Sync() // ignore sync errors (often harmless in dev)
}
