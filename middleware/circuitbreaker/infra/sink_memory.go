package infra

import (
	"context"
	"sync"

	"breaker-gateway/middleware/circuitbreaker/domain"
)

type EventCounters struct {
	FailuresRecorded int64
	CircuitsOpened   int64
}

func (c *EventCounters) add(t domain.EventType) {
	switch t {
	case domain.EventFailureRecorded:
		c.FailuresRecorded++
	case domain.EventCircuitOpened:
		c.CircuitsOpened++
	}
}

// MemoryEventSink é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryEventSink struct {
	mu        sync.Mutex
	total     EventCounters
	byService map[string]EventCounters

	keepLast int
	events   []domain.Event
}

type MemoryEventOption func(*MemoryEventSink)

// WithKeepLast guarda os últimos n eventos (0 = nenhum).
func WithKeepLast(n int) MemoryEventOption {
	return func(s *MemoryEventSink) { s.keepLast = n }
}

func NewMemoryEventSink(opts ...MemoryEventOption) *MemoryEventSink {
	s := &MemoryEventSink{byService: make(map[string]EventCounters)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.EventSink = (*MemoryEventSink)(nil)

func (s *MemoryEventSink) Publish(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Type)
	c := s.byService[ev.Service]
	c.add(ev.Type)
	s.byService[ev.Service] = c

	if s.keepLast > 0 {
		s.events = append(s.events, ev)
		if over := len(s.events) - s.keepLast; over > 0 {
			s.events = append(s.events[:0:0], s.events[over:]...)
		}
	}
	return nil
}

func (s *MemoryEventSink) Total() EventCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryEventSink) ByService() map[string]EventCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]EventCounters, len(s.byService))
	for k, v := range s.byService {
		out[k] = v
	}
	return out
}

// Events retorna uma cópia dos últimos eventos guardados, do mais antigo ao
// mais recente.
func (s *MemoryEventSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}
