package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base   = zap.NewNop()
	sugar  = base.Sugar()
	levels = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// InitLogging initializes logging
// format is "json" or "console"; an empty level means info.
func InitLogging(level, format string) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	levels.SetLevel(lvl)

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = levels
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	SetLogger(logger)
	return nil
}

// SetLogger replaces the process logger. Tests use it with zaptest/observer.
func SetLogger(logger *zap.Logger) {
	base = logger
	sugar = logger.Sugar()
}

// Logger returns the underlying zap logger
func Logger() *zap.Logger {
	return base
}

// Sync flushes buffered entries
func Sync() {
	_ = base.Sync()
}

// Debugf logs debug level messages
func Debugf(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

// Infof logs info level messages
func Infof(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Warnf logs warning level messages
func Warnf(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

// Errorf logs error level messages
func Errorf(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}
