package application

import (
	"context"
	"errors"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"go.uber.org/zap"
)

// CircuitBreaker concentra a regra de transição de um serviço.
//
// Ele não guarda estado: tudo vive no Storage, então vários processos com o
// mesmo backend enxergam o mesmo circuito. Não sabe nada sobre HTTP.
type CircuitBreaker struct {
	service string
	cfg     domain.Config
	storage domain.Storage
	sink    domain.EventSink
	log     *zap.Logger
	now     func() time.Time
}

// NewCircuitBreaker cria o engine de um serviço. sink e log podem ser nil.
func NewCircuitBreaker(service string, cfg domain.Config, storage domain.Storage, sink domain.EventSink, log *zap.Logger) *CircuitBreaker {
	if sink == nil {
		sink = domain.NopSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CircuitBreaker{
		service: service,
		cfg:     cfg,
		storage: storage,
		sink:    sink,
		log:     log.With(zap.String("service", service)),
		now:     time.Now,
	}
}

func (b *CircuitBreaker) Service() string       { return b.service }
func (b *CircuitBreaker) Config() domain.Config { return b.cfg }

// CanPass diz se a chamada pode seguir. CLOSED e HALF_OPEN passam.
// Com ExceptionsEnabled, OPEN vira *domain.CircuitOpenError em vez de false.
func (b *CircuitBreaker) CanPass(ctx context.Context) (bool, error) {
	st, err := b.storage.State(ctx, b.service)
	if err != nil {
		return false, err
	}
	if st != domain.Open {
		return true, nil
	}
	if b.cfg.ExceptionsEnabled {
		return false, &domain.CircuitOpenError{Service: b.service}
	}
	return false, nil
}

// RecordFailure registra a falha e abre o circuito quando o threshold é
// atingido na janela ou quando a falha acontece em HALF_OPEN.
//
// Os marcadores são gravados antes de qualquer publicação: um sink fora do ar
// não impede a abertura. Os erros dos sinks voltam juntos (errors.Join).
func (b *CircuitBreaker) RecordFailure(ctx context.Context) error {
	if err := b.storage.RecordFailure(ctx, b.service, b.cfg.TimeWindow); err != nil {
		return err
	}
	failures, err := b.storage.FailureCount(ctx, b.service)
	if err != nil {
		return err
	}
	st, err := b.storage.State(ctx, b.service)
	if err != nil {
		return err
	}

	opening := st == domain.HalfOpen || failures >= b.cfg.FailureThreshold
	if opening {
		if err := b.open(ctx, st, failures); err != nil {
			return err
		}
	}

	errs := []error{b.publish(ctx, domain.EventFailureRecorded, failures)}
	if opening {
		errs = append(errs, b.publish(ctx, domain.EventCircuitOpened, failures))
	}
	return errors.Join(errs...)
}

// open grava OPEN e HALF_OPEN juntos; HALF_OPEN sobrevive HalfOpenTimeout
// depois que OPEN expira.
func (b *CircuitBreaker) open(ctx context.Context, from domain.State, failures int) error {
	if err := b.storage.OpenCircuit(ctx, b.service, b.cfg.OpenTimeout); err != nil {
		return err
	}
	if err := b.storage.SetHalfOpen(ctx, b.service, b.cfg.HalfOpenTTL()); err != nil {
		return err
	}

	b.log.Info("circuit opened",
		zap.String("from", from.String()),
		zap.Int("failures", failures),
		zap.Duration("open_timeout", b.cfg.OpenTimeout),
	)
	return nil
}

// RecordSuccess fecha o circuito: remove marcadores e falhas. O override,
// se houver, continua.
func (b *CircuitBreaker) RecordSuccess(ctx context.Context) error {
	return b.storage.CloseCircuit(ctx, b.service)
}

func (b *CircuitBreaker) State(ctx context.Context) (domain.State, error) {
	return b.storage.State(ctx, b.service)
}

// ForceState grava um override administrativo. ttl <= 0 não expira.
func (b *CircuitBreaker) ForceState(ctx context.Context, state domain.State, ttl time.Duration) error {
	if err := b.storage.ForceState(ctx, b.service, state, ttl); err != nil {
		return err
	}
	b.log.Info("circuit state forced", zap.String("state", state.String()), zap.Duration("ttl", ttl))
	return nil
}

func (b *CircuitBreaker) ClearOverride(ctx context.Context) error {
	if err := b.storage.ClearOverride(ctx, b.service); err != nil {
		return err
	}
	b.log.Info("circuit override cleared")
	return nil
}

func (b *CircuitBreaker) publish(ctx context.Context, t domain.EventType, failures int) error {
	return b.sink.Publish(ctx, domain.Event{
		Type:     t,
		Service:  b.service,
		At:       b.now(),
		Failures: failures,
	})
}
