// Package logger monta o *zap.Logger usado pelos binários a partir de
// logging.level e logging.environment.
package logger
