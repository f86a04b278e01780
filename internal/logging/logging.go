// Package logging builds the process-wide zap logger from configuration.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ragqa/internal/config"
)

// New returns a logger writing to stderr, or to cfg.File when set, at the
// configured level.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console", "":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.Development = false
	default:
		return nil, fmt.Errorf("unknown logging format: %s", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	out := "stderr"
	if cfg.File != "" {
		out = cfg.File
		if zc.Encoding == "console" {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
	}
	zc.OutputPaths = []string{out}
	zc.ErrorOutputPaths = []string{out}
	zc.DisableStacktrace = true

	return zc.Build()
}
