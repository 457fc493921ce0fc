package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"breaker-gateway/config"
	"breaker-gateway/middleware/circuitbreaker/application"
	"breaker-gateway/middleware/circuitbreaker/domain"
	"breaker-gateway/middleware/circuitbreaker/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Closer libera o que Build abriu (conexões, banco, janitors).
type Closer func() error

// Build monta storage, sinks e Manager a partir das Settings.
//
// ctx controla os janitors em background; cancele-o (ou chame o Closer) no
// shutdown. reg pode ser nil: nesse caso o sink Prometheus não é criado.
func Build(ctx context.Context, s *config.Settings, log *zap.Logger, reg prometheus.Registerer) (*application.Manager, Closer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	resolver, err := s.Resolver()
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	var closers []func() error
	closeAll := func() error {
		cancel()
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*application.Manager, Closer, error) {
		_ = closeAll()
		return nil, nil, err
	}

	var rdb redis.UniversalClient
	redisClient := func() redis.UniversalClient {
		if rdb == nil {
			c := redis.NewClient(&redis.Options{
				Addr:        s.Redis.Addr,
				Password:    s.Redis.Password,
				DB:          s.Redis.DB,
				DialTimeout: s.Redis.DialTimeout,
			})
			closers = append(closers, c.Close)
			rdb = c
		}
		return rdb
	}

	var storage domain.Storage
	switch s.Driver {
	case config.DriverMemory:
		ms := infra.NewMemoryStorage()
		ms.StartJanitor(ctx)
		storage = ms
	case config.DriverRedis:
		rs := infra.NewRedisStorage(redisClient(),
			infra.WithRedisKeyPrefix(s.Redis.Prefix),
			infra.WithRedisHashTag(s.Redis.HashTag),
			infra.WithRedisOpTimeout(s.Redis.OpTimeout),
		)
		pingCtx, cancelPing := context.WithTimeout(ctx, 2*time.Second)
		err := rs.Ping(pingCtx)
		cancelPing()
		if err != nil {
			return fail(err)
		}
		storage = rs
	case config.DriverBadger:
		bs, err := infra.OpenBadgerStorage(infra.BadgerOptions{
			Path:     s.Badger.Path,
			InMemory: s.Badger.InMemory,
			Prefix:   infra.DefaultKeyPrefix,
			Logger:   log.Named("badger"),
		})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, bs.Close)
		storage = bs
	default:
		return fail(&domain.ConfigurationError{Field: "driver", Reason: fmt.Sprintf("unknown driver %q", s.Driver)})
	}

	var sinks []domain.EventSink
	if s.Events.Log {
		sinks = append(sinks, infra.NewLogEventSink(log))
	}
	if s.Events.Prometheus && reg != nil {
		ps, err := infra.NewPrometheusEventSink(reg, "")
		if err != nil {
			return fail(fmt.Errorf("register metrics: %w", err))
		}
		sinks = append(sinks, ps)
	}
	if s.Events.Redis.Enabled {
		sinks = append(sinks, infra.NewRedisEventSink(redisClient(),
			infra.WithEventsPrefix(s.Events.Redis.Prefix),
			infra.WithEventsTTL(s.Events.Redis.TTL),
			infra.WithEventsBucket(s.Events.Redis.Bucket),
		))
	}
	sink := infra.Sinks(sinks...)
	if s.Events.Throttle.RPS > 0 {
		ts := infra.NewThrottledSink(sink, s.Events.Throttle.RPS, s.Events.Throttle.Burst)
		ts.StartJanitor(ctx)
		sink = ts
	}

	m := application.NewManager(storage, resolver,
		application.WithEventSink(sink),
		application.WithLogger(log.Named("breaker")),
		application.WithStorageTimeout(s.Gateway.StorageTimeout),
	)

	log.Info("circuit breaker ready",
		zap.String("driver", s.Driver),
		zap.Int("sinks", len(sinks)),
		zap.Int("service_overrides", len(s.Services)),
	)
	return m, closeAll, nil
}
