package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"go.uber.org/zap"
)

// Manager é o ponto de entrada: resolve (e memoriza) um CircuitBreaker por
// serviço e delega as operações a ele.
//
// O cache é só memoização; todo estado está no Storage. Dois Managers sobre o
// mesmo backend enxergam os mesmos circuitos.
type Manager struct {
	storage  domain.Storage
	resolver *domain.ConfigResolver
	sink     domain.EventSink
	log      *zap.Logger
	now      func() time.Time
	timeout  time.Duration

	engines sync.Map // service -> *CircuitBreaker
}

type Option func(*Manager)

func WithEventSink(sink domain.EventSink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock define o relógio usado no timestamp dos eventos.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithStorageTimeout limita cada operação delegada. Estourar o prazo volta
// como *domain.StorageError.
func WithStorageTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// NewManager cria o Manager. resolver nil usa domain.DefaultConfig para todos.
func NewManager(storage domain.Storage, resolver *domain.ConfigResolver, opts ...Option) *Manager {
	if resolver == nil {
		resolver, _ = domain.NewConfigResolver(domain.DefaultConfig(), nil)
	}
	m := &Manager{
		storage:  storage,
		resolver: resolver,
		sink:     domain.NopSink{},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Resolve retorna o engine do serviço, criando-o no primeiro acesso.
// Em acessos concorrentes, um único engine sobrevive.
func (m *Manager) Resolve(service string) (*CircuitBreaker, error) {
	if service == "" {
		return nil, domain.ErrEmptyService
	}
	if v, ok := m.engines.Load(service); ok {
		return v.(*CircuitBreaker), nil
	}

	cb := NewCircuitBreaker(service, m.resolver.Resolve(service), m.storage, m.sink, m.log)
	cb.now = m.now

	v, loaded := m.engines.LoadOrStore(service, cb)
	if !loaded {
		m.log.Debug("circuit breaker created", zap.String("service", service))
	}
	return v.(*CircuitBreaker), nil
}

// Services lista, em ordem, os serviços já resolvidos por este Manager.
func (m *Manager) Services() []string {
	var out []string
	m.engines.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

func (m *Manager) Resolver() *domain.ConfigResolver { return m.resolver }

func (m *Manager) CanPass(ctx context.Context, service string) (bool, error) {
	cb, err := m.Resolve(service)
	if err != nil {
		return false, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return cb.CanPass(ctx)
}

func (m *Manager) RecordFailure(ctx context.Context, service string) error {
	return m.do(ctx, service, func(ctx context.Context, cb *CircuitBreaker) error {
		return cb.RecordFailure(ctx)
	})
}

func (m *Manager) RecordSuccess(ctx context.Context, service string) error {
	return m.do(ctx, service, func(ctx context.Context, cb *CircuitBreaker) error {
		return cb.RecordSuccess(ctx)
	})
}

func (m *Manager) State(ctx context.Context, service string) (domain.State, error) {
	st := domain.Closed
	err := m.do(ctx, service, func(ctx context.Context, cb *CircuitBreaker) error {
		var err error
		st, err = cb.State(ctx)
		return err
	})
	return st, err
}

func (m *Manager) ForceState(ctx context.Context, service string, state domain.State, ttl time.Duration) error {
	return m.do(ctx, service, func(ctx context.Context, cb *CircuitBreaker) error {
		return cb.ForceState(ctx, state, ttl)
	})
}

func (m *Manager) ClearOverride(ctx context.Context, service string) error {
	return m.do(ctx, service, func(ctx context.Context, cb *CircuitBreaker) error {
		return cb.ClearOverride(ctx)
	})
}

func (m *Manager) do(ctx context.Context, service string, fn func(context.Context, *CircuitBreaker) error) error {
	cb, err := m.Resolve(service)
	if err != nil {
		return err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return fn(ctx, cb)
}

// withTimeout: timeout <= 0 espera até o ctx do chamador.
func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}
