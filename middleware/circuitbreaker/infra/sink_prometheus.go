package infra

import (
	"context"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusEventSink expõe os eventos como métricas:
//
//	circuit_breaker_events_total{service,type}
//	circuit_breaker_last_opened_timestamp_seconds{service}
type PrometheusEventSink struct {
	EventsTotal *prometheus.CounterVec
	LastOpened  *prometheus.GaugeVec
}

// NewPrometheusEventSink cria e registra as métricas em reg. Registrar duas
// vezes no mesmo registry é erro.
func NewPrometheusEventSink(reg prometheus.Registerer, namespace string) (*PrometheusEventSink, error) {
	if namespace == "" {
		namespace = "circuit_breaker"
	}
	s := &PrometheusEventSink{
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Circuit breaker events by service and type",
		}, []string{"service", "type"}),
		LastOpened: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_opened_timestamp_seconds",
			Help:      "Unix time of the last circuit_opened event per service",
		}, []string{"service"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{s.EventsTotal, s.LastOpened} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

var _ domain.EventSink = (*PrometheusEventSink)(nil)

func (s *PrometheusEventSink) Publish(_ context.Context, ev domain.Event) error {
	s.EventsTotal.WithLabelValues(ev.Service, string(ev.Type)).Inc()
	if ev.Type == domain.EventCircuitOpened {
		at := ev.At
		if at.IsZero() {
			at = time.Now()
		}
		s.LastOpened.WithLabelValues(ev.Service).Set(float64(at.Unix()))
	}
	return nil
}
