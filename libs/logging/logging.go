package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LevelEnv selects the minimum level (debug, info, warn, error). Unknown values mean info.
	LevelEnv = "LOG_LEVEL"
	// FormatEnv selects the encoding: json (default) or console.
	FormatEnv = "LOG_FORMAT"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and tags every
// entry with service.
func NewLogger(service string) (*zap.Logger, error) {
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(os.Getenv(LevelEnv))),
		Sampling:         &zap.SamplingConfig{Initial: 100, Thereafter: 100},
		Encoding:         parseFormat(os.Getenv(FormatEnv)),
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if service != "" {
		cfg.InitialFields = map[string]interface{}{"service": service}
	}
	return cfg.Build()
}

func parseLevel(raw string) zapcore.Level {
	var level zapcore.Level
	if err := level.Set(strings.ToLower(strings.TrimSpace(raw))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func parseFormat(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "console") {
		return "console"
	}
	return "json"
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.StacktraceKey = "stack"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339Nano))
	}
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}
