package log

import (
	"crypto/sha256"
	"fmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger. format "json" switches to the production
// encoder; anything else keeps the console development encoder.
func New(levelEnv, format string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if format == "json" {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)

	if levelEnv != "" {
		if err := cfg.Level.UnmarshalText([]byte(levelEnv)); err != nil {
			fmt.Printf("bad LOG_LEVEL=%s, fallback to info\n", levelEnv)
		}
	}
	l, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	if err != nil {
		return nil, err
	}
	return l.With(zap.String("service", "agile-platform-api")), nil
}

func Must(levelEnv, format string) *zap.Logger {
	l, err := New(levelEnv, format)
	if err != nil {
		panic(err)
	}
	return l
}

// Email logs a stable digest instead of the address itself.
func Email(email string) zap.Field {
	return zap.String("user", fmt.Sprintf("%x", sha256.Sum256([]byte(email))))
}
