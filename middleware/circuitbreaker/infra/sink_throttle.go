package infra

import (
	"context"
	"sync"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"golang.org/x/time/rate"
)

// ThrottledSink limita, por serviço, quantos failure_recorded chegam ao sink
// de destino (token bucket com x/time/rate). circuit_opened nunca é descartado.
//
// Um serviço em pane gera uma falha por request; sem limite, cada uma vira
// uma escrita no Redis ou uma linha de log.
type ThrottledSink struct {
	next domain.EventSink

	mu           sync.Mutex
	entries      map[string]*throttleEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time

	dropped int64
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ThrottleOption func(*ThrottledSink)

func WithThrottleIdleTTL(d time.Duration) ThrottleOption {
	return func(s *ThrottledSink) { s.idleTTL = d }
}

func WithThrottleCleanupEvery(d time.Duration) ThrottleOption {
	return func(s *ThrottledSink) { s.cleanupEvery = d }
}

func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(s *ThrottledSink) { s.now = now }
}

func NewThrottledSink(next domain.EventSink, rps float64, burst int, opts ...ThrottleOption) *ThrottledSink {
	if next == nil {
		next = domain.NopSink{}
	}
	s := &ThrottledSink{
		next:         next,
		entries:      make(map[string]*throttleEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.EventSink = (*ThrottledSink)(nil)

func (s *ThrottledSink) Publish(ctx context.Context, ev domain.Event) error {
	if ev.Type != domain.EventCircuitOpened && !s.allow(ev.Service) {
		return nil
	}
	return s.next.Publish(ctx, ev)
}

// Dropped é o total de eventos descartados pelo limite.
func (s *ThrottledSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *ThrottledSink) allow(service string) bool {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[service]
	if !ok {
		ent = &throttleEntry{lim: rate.NewLimiter(s.rps, s.burst)}
		s.entries[service] = ent
	}
	ent.lastSeen = now
	if ent.lim.AllowN(now, 1) {
		return true
	}
	s.dropped++
	return false
}

func (s *ThrottledSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup remove limitadores de serviços sem eventos há mais de idleTTL.
func (s *ThrottledSink) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa limitadores inativos
// periodicamente. Pare cancelando o contexto.
func (s *ThrottledSink) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
