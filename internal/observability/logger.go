package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line.
const ServiceName = "launch-dashboard"

// NewLogger builds the process logger. Production emits JSON; development emits
// colored console lines. LOG_LEVEL selects the minimum level in both.
func NewLogger(development bool, version string) (*zap.Logger, error) {
	return loggerConfig(development, version, os.Getenv("LOG_LEVEL")).Build()
}

func loggerConfig(development bool, version, level string) zap.Config {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = parseLogLevel(level)
	cfg.InitialFields = map[string]interface{}{
		"service": ServiceName,
		"version": version,
	}
	return cfg
}

// parseLogLevel accepts any zap level name, case-insensitively. Unknown or empty
// values mean info.
func parseLogLevel(s string) zap.AtomicLevel {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		level = zapcore.InfoLevel
	}
	return zap.NewAtomicLevelAt(level)
}
