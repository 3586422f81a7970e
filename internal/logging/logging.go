// Package logging builds the treegate zap logger: configured level,
// format and sink, secret redaction on the encoder, and an optional OTEL
// log bridge.
package logging

import (
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is "json" or "console".
	Format string
	// Output is "stdout", "stderr", or a file path.
	Output string
	// OTEL mirrors log records to an OTEL logger provider when one is
	// supplied to New.
	OTEL bool
}

// NewDefaultConfig returns production-ready defaults.
func NewDefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}
}

// New creates a logger from config. otelProvider may be nil, which
// disables the OTEL bridge regardless of cfg.OTEL. The returned cleanup
// closes any opened file sink.
func New(cfg Config, otelProvider log.LoggerProvider) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	sink, cleanup, err := zap.Open(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log output %q: %w", cfg.Output, err)
	}

	encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), defaultRedaction())
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("building redacting encoder: %w", err)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, sink, level)}
	if cfg.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore("treegate",
			otelzap.WithLoggerProvider(otelProvider),
		))
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}

	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("service", "treegate"))

	return logger, cleanup, nil
}

// newEncoder creates a JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
