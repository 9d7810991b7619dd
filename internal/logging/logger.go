package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a development logger writing to paths. An unparsable level
// falls back to info; the second return value reports that.
func New(level string, paths ...string) (*zap.Logger, bool, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.OutputPaths = paths
	cfg.ErrorOutputPaths = paths

	fellBack := false
	if level != "" {
		if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
			cfg.Level.SetLevel(zap.InfoLevel)
			fellBack = true
		}
	}

	logger, err := cfg.Build(zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, false, err
	}
	return logger, fellBack, nil
}
