// Package logging builds the zap logger shared by the server, workers and CLI.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger, or a console development logger
// when env is "dev" or "development". LOG_LEVEL overrides the level.
func New(env string) (*zap.Logger, error) {
	var zapConfig zap.Config

	switch env {
	case "dev", "development":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Level.SetLevel(zap.DebugLevel)
	default:
		zapConfig = zap.NewProductionConfig()
		zapConfig.Level.SetLevel(zap.InfoLevel)
		zapConfig.EncoderConfig.TimeKey = "ts"
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
		zapConfig.Level.SetLevel(parsed)
	}

	zapConfig.InitialFields = map[string]interface{}{
		"service": "complaint-engine",
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
