// Package logging builds the process loggers from LOG_LEVEL
package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// levelName normalizes LOG_LEVEL. zap has no trace level, so trace logs at debug.
func levelName(level string) string {
	name := strings.ToLower(level)
	if name == "trace" {
		return "debug"
	}
	return name
}

// New creates the process logger. "debug" selects the development encoder, every
// other level the production one.
func New(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(levelName(level))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	var z zap.Config
	if lvl == zapcore.DebugLevel {
		z = zap.NewDevelopmentConfig()
	} else {
		z = zap.NewProductionConfig()
	}
	z.Level = zap.NewAtomicLevelAt(lvl)
	z.OutputPaths = []string{"stdout"}

	logger, err := z.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zap.ReplaceGlobals(logger)

	return logger.Sugar(), nil
}

// GormLevel maps LOG_LEVEL onto the GORM log level
func GormLevel(level string) gormlogger.LogLevel {
	switch levelName(level) {
	case "debug":
		return gormlogger.Info
	case "info", "warn":
		return gormlogger.Warn
	case "error":
		return gormlogger.Error
	default:
		return gormlogger.Silent
	}
}

// Gorm routes GORM's log output through logger
func Gorm(logger *zap.SugaredLogger, level string) gormlogger.Interface {
	return gormlogger.New(
		zap.NewStdLog(logger.Desugar()),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  GormLevel(level),
			IgnoreRecordNotFoundError: true,
		},
	)
}
