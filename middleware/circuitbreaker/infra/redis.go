package infra

import (
	"context"
	"math"
	"strconv"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStorage é o domain.Storage compartilhado entre processos.
//
// Layout:
//   - open / half_open / override: strings com SET EX
//   - failure: sorted set; score = instante (ms) em que a falha deixa de contar
//
// Toda operação é um único comando ou um MULTI/EXEC, então é atômica por serviço.
type RedisStorage struct {
	rdb     redis.UniversalClient
	keys    Keys
	timeout time.Duration
	now     func() time.Time
}

type RedisOption func(*RedisStorage)

func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) { s.keys.Prefix = prefix }
}

// WithRedisHashTag agrupa as chaves de um serviço no mesmo slot (Redis Cluster).
func WithRedisHashTag(on bool) RedisOption {
	return func(s *RedisStorage) { s.keys.HashTag = on }
}

// WithRedisOpTimeout limita cada operação. Estourar o prazo vira StorageError.
func WithRedisOpTimeout(d time.Duration) RedisOption {
	return func(s *RedisStorage) { s.timeout = d }
}

func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStorage) { s.now = now }
}

func NewRedisStorage(rdb redis.UniversalClient, opts ...RedisOption) *RedisStorage {
	s := &RedisStorage{
		rdb:  rdb,
		keys: NewKeys(DefaultKeyPrefix),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.Storage = (*RedisStorage)(nil)

func (s *RedisStorage) Keys() Keys { return s.keys }

func (s *RedisStorage) RecordFailure(ctx context.Context, service string, window time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	key := s.keys.Failure(service)
	score := math.Inf(1)
	if window > 0 {
		score = float64(now.Add(window).UnixMilli())
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.UnixMilli(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: uuid.NewString()})
		if window > 0 {
			pipe.Expire(ctx, key, window)
		} else {
			pipe.Persist(ctx, key)
		}
		return nil
	})
	return domain.NewStorageError("record_failure", service, err)
}

func (s *RedisStorage) FailureCount(ctx context.Context, service string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	from := "(" + strconv.FormatInt(s.now().UnixMilli(), 10)
	n, err := s.rdb.ZCount(ctx, s.keys.Failure(service), from, "+inf").Result()
	if err != nil {
		return 0, domain.NewStorageError("failure_count", service, err)
	}
	return int(n), nil
}

func (s *RedisStorage) OpenCircuit(ctx context.Context, service string, ttl time.Duration) error {
	return s.set(ctx, "open_circuit", service, s.keys.Open(service), "1", ttl)
}

func (s *RedisStorage) SetHalfOpen(ctx context.Context, service string, ttl time.Duration) error {
	return s.set(ctx, "set_half_open", service, s.keys.HalfOpen(service), "1", ttl)
}

func (s *RedisStorage) CloseCircuit(ctx context.Context, service string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.rdb.Del(ctx,
		s.keys.Open(service),
		s.keys.HalfOpen(service),
		s.keys.Failure(service),
	).Err()
	return domain.NewStorageError("close_circuit", service, err)
}

func (s *RedisStorage) DerivedState(ctx context.Context, service string) (domain.State, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	vals, err := s.rdb.MGet(ctx, s.keys.Open(service), s.keys.HalfOpen(service)).Result()
	if err != nil {
		return domain.Closed, domain.NewStorageError("derived_state", service, err)
	}
	return domain.DeriveState(vals[0] != nil, vals[1] != nil), nil
}

func (s *RedisStorage) ForceState(ctx context.Context, service string, state domain.State, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.set(ctx, "force_state", service, s.keys.Override(service), state.String(), ttl)
}

func (s *RedisStorage) ClearOverride(ctx context.Context, service string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.rdb.Del(ctx, s.keys.Override(service)).Err()
	return domain.NewStorageError("clear_override", service, err)
}

func (s *RedisStorage) State(ctx context.Context, service string) (domain.State, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// uma ida ao Redis: override + marcadores
	vals, err := s.rdb.MGet(ctx,
		s.keys.Override(service),
		s.keys.Open(service),
		s.keys.HalfOpen(service),
	).Result()
	if err != nil {
		return domain.Closed, domain.NewStorageError("state", service, err)
	}

	if vals[0] != nil {
		raw, _ := vals[0].(string)
		st, err := domain.ParseState(raw)
		if err != nil {
			return domain.Closed, domain.NewStorageError("state", service, err)
		}
		return st, nil
	}
	return domain.DeriveState(vals[1] != nil, vals[2] != nil), nil
}

// Ping verifica a conexão (usado no boot).
func (s *RedisStorage) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return domain.NewStorageError("ping", "", s.rdb.Ping(ctx).Err())
}

func (s *RedisStorage) set(ctx context.Context, op, service, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.rdb.Set(ctx, key, value, ttl).Err()
	return domain.NewStorageError(op, service, err)
}

func (s *RedisStorage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
