// Package logger builds the structured zap loggers used by the fund binaries.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel returns an atomic level for level (debug, info, warn, error).
// Unknown values fall back to info.
func ParseLevel(level string) zap.AtomicLevel {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}
	return zap.NewAtomicLevelAt(zapLevel)
}

// New creates a JSON logger on stdout tagged with service.
//
// Args:
//   - service: value of the "service" field on every entry
//   - level: minimum level (debug, info, warn, error)
//
// Returns:
//   - *zap.Logger with caller information
func New(service string, level string) *zap.Logger {
	return NewWithLevel(service, ParseLevel(level), os.Stdout)
}

// NewWithLevel creates a logger writing to w whose level can be changed at runtime.
func NewWithLevel(service string, level zap.AtomicLevel, w io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core, zap.AddCaller()).With(zap.String("service", service))
}
