package app

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig configures logging wiring.
type LoggingConfig struct {
	Logger      *zap.Logger
	Development bool
	Level       string
}

// Logging bundles the root logger and its adjustable level.
type Logging struct {
	Logger *zap.Logger
	Level  zap.AtomicLevel
}

// NewLogging builds the root logger unless cfg carries one already.
func NewLogging(cfg LoggingConfig) (Logging, error) {
	if cfg.Logger != nil {
		return Logging{Logger: cfg.Logger, Level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}, nil
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return Logging{}, fmt.Errorf("log level: %w", err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return Logging{}, err
	}
	return Logging{Logger: logger, Level: zapCfg.Level}, nil
}
