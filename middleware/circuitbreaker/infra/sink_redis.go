package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"github.com/redis/go-redis/v9"
)

// RedisEventSink acumula contadores de eventos em hashes do Redis.
//
// Chaves (prefixo padrão "cb:events"):
//   - <prefix>:total           hash tipo -> contagem (cumulativo, não expira)
//   - <prefix>:service:<svc>   hash tipo -> contagem
//   - <prefix>:minute:<yyyymmddhhmm> hash tipo -> contagem (expira com ttl)
//   - <prefix>:last_opened     hash serviço -> unix seconds do último circuit_opened
type RedisEventSink struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"
}

type RedisEventOption func(*RedisEventSink)

func WithEventsPrefix(prefix string) RedisEventOption {
	return func(s *RedisEventSink) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithEventsTTL(d time.Duration) RedisEventOption {
	return func(s *RedisEventSink) { s.ttl = d }
}

func WithEventsBucket(bucket string) RedisEventOption {
	return func(s *RedisEventSink) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func NewRedisEventSink(rdb redis.UniversalClient, opts ...RedisEventOption) *RedisEventSink {
	s := &RedisEventSink{
		rdb:    rdb,
		prefix: "cb:events",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.EventSink = (*RedisEventSink)(nil)

func (s *RedisEventSink) Publish(ctx context.Context, ev domain.Event) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := string(ev.Type)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.TotalKey(), field, 1)

	if svc := strings.TrimSpace(ev.Service); svc != "" {
		pipe.HIncrBy(ctx, s.ServiceKey(svc), field, 1)
		if ev.Type == domain.EventCircuitOpened {
			pipe.HSet(ctx, s.prefix+":last_opened", svc, at.Unix())
		}
	}

	if s.bucket == "minute" {
		bucketKey := s.MinuteKey(at)
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis event sink: %w", err)
	}
	return nil
}

func (s *RedisEventSink) TotalKey() string { return s.prefix + ":total" }

func (s *RedisEventSink) ServiceKey(service string) string {
	return s.prefix + ":service:" + service
}

func (s *RedisEventSink) MinuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}
