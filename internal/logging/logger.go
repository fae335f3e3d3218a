// Package logging configures the process-wide structured logger. CLI
// runs are silent unless RRCFORGE_LOG_LEVEL is set; the daemon wires an
// explicit level plus file rotation.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

// LogLevelEnvVar controls verbosity when no explicit level is given.
// Valid values: "debug", "info", "warn", "error". Unset means silent.
const LogLevelEnvVar = "RRCFORGE_LOG_LEVEL"

// Initialize builds the logger at the given level. An empty level falls
// back to the environment variable; if that is also empty the logger
// stays a nop so batch CLI output is not polluted.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}
	zapLevel, err := parseLevel(level)
	if err != nil {
		return err
	}
	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	logger = built
	return nil
}

// InitializeWithWriter builds a logger that writes JSON lines to w at
// the given level. The daemon uses this to multiplex through its log
// rotator.
func InitializeWithWriter(level string, w io.Writer) error {
	zapLevel, err := parseLevel(level)
	if err != nil {
		return err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zapLevel)
	logger = zap.New(core)
	return nil
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// L returns the configured logger.
func L() *zap.Logger {
	return logger
}

// Debug logs a debug message.
func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }

// Info logs an info message.
func Info(msg string, fields ...zap.Field) { logger.Info(msg, fields...) }

// Warn logs a warning message.
func Warn(msg string, fields ...zap.Field) { logger.Warn(msg, fields...) }

// Error logs an error message.
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func Sync() {
	_ = logger.Sync()
}
