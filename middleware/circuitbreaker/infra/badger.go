package infra

import (
	"context"
	"errors"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BadgerStorage é um domain.Storage embutido e durável (badger/v4) com TTL
// nativo por entrada.
//
// O badger trava o diretório para um único processo: serve para um gateway
// que precisa sobreviver a restart, não para compartilhar estado entre nós.
// Cada falha é uma chave própria com TTL = janela; a contagem é uma iteração
// por prefixo (o iterador já ignora entradas expiradas).
//
// O TTL do badger tem granularidade de segundo.
type BadgerStorage struct {
	db   *badger.DB
	keys Keys
}

type BadgerOptions struct {
	Path     string
	InMemory bool
	Prefix   string
	Logger   *zap.Logger
}

// OpenBadgerStorage abre (ou cria) o banco. Feche com Close.
func OpenBadgerStorage(o BadgerOptions) (*BadgerStorage, error) {
	var opts badger.Options
	if o.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if o.Path == "" {
			return nil, &domain.ConfigurationError{Field: "badger.path", Reason: "is required when in_memory is false"}
		}
		opts = badger.DefaultOptions(o.Path)
	}
	opts = opts.WithLogger(badgerLogger{log: loggerOrNop(o.Logger).Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewStorageError("open", "", err)
	}
	return NewBadgerStorage(db, o.Prefix), nil
}

func NewBadgerStorage(db *badger.DB, prefix string) *BadgerStorage {
	return &BadgerStorage{db: db, keys: NewKeys(prefix)}
}

var _ domain.Storage = (*BadgerStorage)(nil)

func (s *BadgerStorage) Close() error { return s.db.Close() }

func (s *BadgerStorage) RecordFailure(ctx context.Context, service string, window time.Duration) error {
	key := []byte(s.keys.FailureEvent(service, uuid.NewString()))
	return s.update(ctx, "record_failure", service, func(txn *badger.Txn) error {
		e := badger.NewEntry(key, nil)
		if window > 0 {
			e = e.WithTTL(window)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStorage) FailureCount(ctx context.Context, service string) (int, error) {
	n := 0
	err := s.view(ctx, "failure_count", service, func(txn *badger.Txn) error {
		n = 0
		prefix := []byte(s.keys.FailurePrefix(service))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BadgerStorage) OpenCircuit(ctx context.Context, service string, ttl time.Duration) error {
	return s.set(ctx, "open_circuit", service, s.keys.Open(service), "1", ttl)
}

func (s *BadgerStorage) SetHalfOpen(ctx context.Context, service string, ttl time.Duration) error {
	return s.set(ctx, "set_half_open", service, s.keys.HalfOpen(service), "1", ttl)
}

func (s *BadgerStorage) CloseCircuit(ctx context.Context, service string) error {
	return s.update(ctx, "close_circuit", service, func(txn *badger.Txn) error {
		prefix := []byte(s.keys.FailurePrefix(service))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		var keys [][]byte
		it := txn.NewIterator(opts)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		keys = append(keys, []byte(s.keys.Open(service)), []byte(s.keys.HalfOpen(service)))
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStorage) DerivedState(ctx context.Context, service string) (domain.State, error) {
	st := domain.Closed
	err := s.view(ctx, "derived_state", service, func(txn *badger.Txn) error {
		var err error
		st, err = s.derived(txn, service)
		return err
	})
	return st, err
}

func (s *BadgerStorage) ForceState(ctx context.Context, service string, state domain.State, ttl time.Duration) error {
	return s.set(ctx, "force_state", service, s.keys.Override(service), state.String(), ttl)
}

func (s *BadgerStorage) ClearOverride(ctx context.Context, service string) error {
	return s.update(ctx, "clear_override", service, func(txn *badger.Txn) error {
		return txn.Delete([]byte(s.keys.Override(service)))
	})
}

func (s *BadgerStorage) State(ctx context.Context, service string) (domain.State, error) {
	st := domain.Closed
	err := s.view(ctx, "state", service, func(txn *badger.Txn) error {
		raw, ok, err := getString(txn, s.keys.Override(service))
		if err != nil {
			return err
		}
		if ok {
			st, err = domain.ParseState(raw)
			return err
		}
		st, err = s.derived(txn, service)
		return err
	})
	return st, err
}

func (s *BadgerStorage) derived(txn *badger.Txn, service string) (domain.State, error) {
	openLive, err := exists(txn, s.keys.Open(service))
	if err != nil {
		return domain.Closed, err
	}
	halfLive, err := exists(txn, s.keys.HalfOpen(service))
	if err != nil {
		return domain.Closed, err
	}
	return domain.DeriveState(openLive, halfLive), nil
}

func (s *BadgerStorage) set(ctx context.Context, op, service, key, value string, ttl time.Duration) error {
	return s.update(ctx, op, service, func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), []byte(value))
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerStorage) update(ctx context.Context, op, service string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(op, service, err)
	}
	return domain.NewStorageError(op, service, s.db.Update(fn))
}

func (s *BadgerStorage) view(ctx context.Context, op, service string, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError(op, service, err)
	}
	return domain.NewStorageError(op, service, s.db.View(fn))
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func getString(txn *badger.Txn, key string) (string, bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

// badgerLogger encaminha o log interno do badger para o zap.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
