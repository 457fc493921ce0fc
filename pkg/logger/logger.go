package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New cria o logger da aplicação: JSON em "prod", console colorido nos
// demais ambientes.
func New(lvl string, environment string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.ToLower(environment) == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(lvl))

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("environment", environment)), nil
}

// ParseLevel aceita debug, info, warn e error. Qualquer outro valor vira info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
