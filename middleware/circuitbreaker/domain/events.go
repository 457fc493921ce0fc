package domain

import (
	"context"
	"time"
)

type EventType string

const (
	EventCircuitOpened   EventType = "circuit_opened"
	EventFailureRecorded EventType = "failure_recorded"
)

// Event é uma notificação emitida pelo breaker.
//
// Cuidado com cardinalidade: Service vira label/chave em sinks como
// Prometheus e Redis.
type Event struct {
	Type    EventType
	Service string
	At      time.Time
	// Failures é a contagem na janela no momento do evento.
	Failures int
}

// EventSink recebe eventos de forma síncrona, na mesma chamada que registrou
// a falha. Um erro do sink é propagado para quem chamou RecordFailure.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

// NopSink é o sink padrão quando nenhum é configurado.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// SinkFunc adapta uma função para EventSink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
