package infra

import (
	"context"
	"sync"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"
)

// MemoryStorage é um domain.Storage em memória com TTL por chave.
//
// Útil para testes, desenvolvimento e processo único: o estado não é
// compartilhado entre processos. A expiração é verificada em toda leitura;
// o janitor só libera memória.
type MemoryStorage struct {
	mu       sync.Mutex
	keys     Keys
	markers  map[string]memoryEntry
	failures map[string][]time.Time // serviço -> expiração de cada falha (zero = não expira)

	now          func() time.Time
	cleanupEvery time.Duration
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = não expira
}

func (e memoryEntry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

type MemoryOption func(*MemoryStorage)

// WithMemoryClock injeta o relógio (testes).
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStorage) { s.now = now }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryOption {
	return func(s *MemoryStorage) { s.cleanupEvery = d }
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		keys:         NewKeys(""),
		markers:      make(map[string]memoryEntry),
		failures:     make(map[string][]time.Time),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.Storage = (*MemoryStorage)(nil)

func (s *MemoryStorage) RecordFailure(ctx context.Context, service string, window time.Duration) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("record_failure", service, err)
	}
	now := s.now()

	var exp time.Time
	if window > 0 {
		exp = now.Add(window)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[service] = append(pruneFailures(s.failures[service], now), exp)
	return nil
}

func (s *MemoryStorage) FailureCount(ctx context.Context, service string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, domain.NewStorageError("failure_count", service, err)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	live := pruneFailures(s.failures[service], now)
	if len(live) == 0 {
		delete(s.failures, service)
	} else {
		s.failures[service] = live
	}
	return len(live), nil
}

func (s *MemoryStorage) OpenCircuit(ctx context.Context, service string, ttl time.Duration) error {
	return s.set(ctx, "open_circuit", service, s.keys.Open(service), "1", ttl)
}

func (s *MemoryStorage) SetHalfOpen(ctx context.Context, service string, ttl time.Duration) error {
	return s.set(ctx, "set_half_open", service, s.keys.HalfOpen(service), "1", ttl)
}

func (s *MemoryStorage) CloseCircuit(ctx context.Context, service string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("close_circuit", service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, s.keys.Open(service))
	delete(s.markers, s.keys.HalfOpen(service))
	delete(s.failures, service)
	return nil
}

func (s *MemoryStorage) DerivedState(ctx context.Context, service string) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.Closed, domain.NewStorageError("derived_state", service, err)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derivedLocked(service, now), nil
}

func (s *MemoryStorage) ForceState(ctx context.Context, service string, state domain.State, ttl time.Duration) error {
	return s.set(ctx, "force_state", service, s.keys.Override(service), state.String(), ttl)
}

func (s *MemoryStorage) ClearOverride(ctx context.Context, service string) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("clear_override", service, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, s.keys.Override(service))
	return nil
}

func (s *MemoryStorage) State(ctx context.Context, service string) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.Closed, domain.NewStorageError("state", service, err)
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if ov, ok := s.markers[s.keys.Override(service)]; ok && ov.live(now) {
		st, err := domain.ParseState(ov.value)
		if err != nil {
			return domain.Closed, domain.NewStorageError("state", service, err)
		}
		return st, nil
	}
	return s.derivedLocked(service, now), nil
}

func (s *MemoryStorage) set(ctx context.Context, op, service, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(op, service, err)
	}

	ent := memoryEntry{value: value}
	if ttl > 0 {
		ent.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[key] = ent
	return nil
}

// derivedLocked exige s.mu.
func (s *MemoryStorage) derivedLocked(service string, now time.Time) domain.State {
	open, ok := s.markers[s.keys.Open(service)]
	openLive := ok && open.live(now)
	half, ok := s.markers[s.keys.HalfOpen(service)]
	halfLive := ok && half.live(now)
	return domain.DeriveState(openLive, halfLive)
}

func pruneFailures(in []time.Time, now time.Time) []time.Time {
	out := in[:0]
	for _, exp := range in {
		if exp.IsZero() || now.Before(exp) {
			out = append(out, exp)
		}
	}
	return out
}

// Cleanup remove marcadores e falhas expirados.
func (s *MemoryStorage) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.markers {
		if !ent.live(now) {
			delete(s.markers, k)
		}
	}
	for svc, list := range s.failures {
		live := pruneFailures(list, now)
		if len(live) == 0 {
			delete(s.failures, svc)
			continue
		}
		s.failures[svc] = live
	}
}

// Len retorna quantos marcadores estão guardados (vivos ou ainda não limpos).
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// StartJanitor inicia uma goroutine que limpa entradas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStorage) StartJanitor(ctx context.Context) {
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
