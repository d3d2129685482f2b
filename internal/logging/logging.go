// Package logging builds the zap logger shared by all ztc subcommands.
package logging

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
)

// New builds a console logger. verbose forces debug level; otherwise the
// configured level is used. When cfg.File is set, records are also appended
// to that file. Every record carries a run_id for correlating one invocation.
func New(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	outputs := []string{"stdout"}
	if cfg.File != "" {
		outputs = append(outputs, cfg.File)
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			MessageKey:     "M",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeName:     zapcore.FullNameEncoder,
		},
	}

	logger, err := zcfg.Build(zap.Fields(zap.String("run_id", NewRunID())))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Fallback returns a logger that does not depend on configuration, used
// before the config file has been read.
func Fallback(verbose bool) *zap.Logger {
	logger, err := New(config.LoggingConfig{Level: "info"}, verbose)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// NewRunID returns a short random identifier for one invocation.
func NewRunID() string {
	return uuid.NewString()[:8]
}

// Progress returns the index/total fields attached to per-host records.
func Progress(i, total int) []zap.Field {
	return []zap.Field{zap.Int("index", i+1), zap.Int("total", total)}
}
