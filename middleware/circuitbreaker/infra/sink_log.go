package infra

import (
	"context"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"go.uber.org/zap"
)

// LogEventSink escreve cada evento no log estruturado. circuit_opened sai em
// Warn; failure_recorded em Debug.
type LogEventSink struct {
	log *zap.Logger
}

func NewLogEventSink(log *zap.Logger) *LogEventSink {
	return &LogEventSink{log: loggerOrNop(log).Named("events")}
}

var _ domain.EventSink = (*LogEventSink)(nil)

func (s *LogEventSink) Publish(_ context.Context, ev domain.Event) error {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("service", ev.Service),
		zap.Int("failures", ev.Failures),
		zap.Time("at", ev.At),
	}
	if ev.Type == domain.EventCircuitOpened {
		s.log.Warn("circuit event", fields...)
		return nil
	}
	s.log.Debug("circuit event", fields...)
	return nil
}
