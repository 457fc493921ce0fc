// Package config carrega circuit_breaker.yaml (viper) com override por
// variáveis de ambiente CB_* (ex.: CB_DRIVER, CB_REDIS_ADDR).
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverBadger = "badger"

	EnvPrefix = "CB"
)

type Settings struct {
	Driver   string                     `mapstructure:"driver" json:"driver"`
	Redis    RedisSettings              `mapstructure:"redis" json:"redis"`
	Badger   BadgerSettings             `mapstructure:"badger" json:"badger"`
	Defaults Thresholds                 `mapstructure:"defaults" json:"defaults"`
	Services map[string]ServiceOverride `mapstructure:"services" json:"services"`
	Events   EventSettings              `mapstructure:"events" json:"events"`
	Logging  LoggingSettings            `mapstructure:"logging" json:"logging"`
	Gateway  GatewaySettings            `mapstructure:"gateway" json:"gateway"`
}

type RedisSettings struct {
	Addr        string        `mapstructure:"addr" json:"addr"`
	Password    string        `mapstructure:"password" json:"password"`
	DB          int           `mapstructure:"db" json:"db"`
	Prefix      string        `mapstructure:"prefix" json:"prefix"`
	HashTag     bool          `mapstructure:"hash_tag" json:"hash_tag"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout" json:"op_timeout"`
}

type BadgerSettings struct {
	Path     string `mapstructure:"path" json:"path"`
	InMemory bool   `mapstructure:"in_memory" json:"in_memory"`
}

// Thresholds usa segundos inteiros, como no YAML.
type Thresholds struct {
	FailureThreshold  int  `mapstructure:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold  int  `mapstructure:"success_threshold" json:"success_threshold"`
	TimeWindow        int  `mapstructure:"time_window" json:"time_window"`
	OpenTimeout       int  `mapstructure:"open_timeout" json:"open_timeout"`
	HalfOpenTimeout   int  `mapstructure:"half_open_timeout" json:"half_open_timeout"`
	ExceptionsEnabled bool `mapstructure:"exceptions_enabled" json:"exceptions_enabled"`
}

// ServiceOverride é parcial: campo ausente herda de defaults.
type ServiceOverride struct {
	FailureThreshold  *int  `mapstructure:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold  *int  `mapstructure:"success_threshold" json:"success_threshold"`
	TimeWindow        *int  `mapstructure:"time_window" json:"time_window"`
	OpenTimeout       *int  `mapstructure:"open_timeout" json:"open_timeout"`
	HalfOpenTimeout   *int  `mapstructure:"half_open_timeout" json:"half_open_timeout"`
	ExceptionsEnabled *bool `mapstructure:"exceptions_enabled" json:"exceptions_enabled"`
}

type EventSettings struct {
	Log        bool                  `mapstructure:"log" json:"log"`
	Prometheus bool                  `mapstructure:"prometheus" json:"prometheus"`
	Redis      RedisEventSettings    `mapstructure:"redis" json:"redis"`
	Throttle   EventThrottleSettings `mapstructure:"throttle" json:"throttle"`
}

type RedisEventSettings struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	Prefix  string        `mapstructure:"prefix" json:"prefix"`
	TTL     time.Duration `mapstructure:"ttl" json:"ttl"`
	Bucket  string        `mapstructure:"bucket" json:"bucket"`
}

// EventThrottleSettings: rps <= 0 desliga o limite.
type EventThrottleSettings struct {
	RPS   float64 `mapstructure:"rps" json:"rps"`
	Burst int     `mapstructure:"burst" json:"burst"`
}

type LoggingSettings struct {
	Level       string `mapstructure:"level" json:"level"`
	Environment string `mapstructure:"environment" json:"environment"`
}

type GatewaySettings struct {
	ListenAddr     string        `mapstructure:"listen_addr" json:"listen_addr"`
	AdminAddr      string        `mapstructure:"admin_addr" json:"admin_addr"`
	UpstreamURL    string        `mapstructure:"upstream_url" json:"upstream_url"`
	Service        string        `mapstructure:"service" json:"service"`
	ServiceHeader  string        `mapstructure:"service_header" json:"service_header"`
	FailOpen       bool          `mapstructure:"fail_open" json:"fail_open"`
	RetryAfter     time.Duration `mapstructure:"retry_after" json:"retry_after"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout" json:"storage_timeout"`
}

func setDefaults(v *viper.Viper) {
	d := domain.DefaultConfig()

	v.SetDefault("driver", DriverRedis)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "cb:")
	v.SetDefault("redis.hash_tag", false)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.op_timeout", 500*time.Millisecond)

	v.SetDefault("badger.path", "")
	v.SetDefault("badger.in_memory", false)

	v.SetDefault("defaults.failure_threshold", d.FailureThreshold)
	v.SetDefault("defaults.success_threshold", d.SuccessThreshold)
	v.SetDefault("defaults.time_window", int(d.TimeWindow/time.Second))
	v.SetDefault("defaults.open_timeout", int(d.OpenTimeout/time.Second))
	v.SetDefault("defaults.half_open_timeout", int(d.HalfOpenTimeout/time.Second))
	v.SetDefault("defaults.exceptions_enabled", d.ExceptionsEnabled)

	v.SetDefault("events.log", true)
	v.SetDefault("events.prometheus", true)
	v.SetDefault("events.redis.enabled", false)
	v.SetDefault("events.redis.prefix", "cb:events")
	v.SetDefault("events.redis.ttl", 24*time.Hour)
	v.SetDefault("events.redis.bucket", "minute")
	v.SetDefault("events.throttle.rps", 0)
	v.SetDefault("events.throttle.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.environment", "dev")

	v.SetDefault("gateway.listen_addr", ":8080")
	v.SetDefault("gateway.admin_addr", ":9090")
	v.SetDefault("gateway.upstream_url", "")
	v.SetDefault("gateway.service", "")
	v.SetDefault("gateway.service_header", "")
	v.SetDefault("gateway.fail_open", false)
	v.SetDefault("gateway.retry_after", 0)
	v.SetDefault("gateway.storage_timeout", time.Second)
}

// Load lê o arquivo em path. path vazio procura circuit_breaker.yaml em "."
// e "./config"; não encontrar o arquivo não é erro (valem defaults e env).
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("circuit_breaker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checa o que não depende do domínio; os thresholds são validados
// por domain.NewConfigResolver.
func (s *Settings) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverMemory, DriverRedis, DriverBadger)),
		validation.Field(&s.Logging),
		validation.Field(&s.Events),
	)
	if err != nil {
		return toConfigurationError(err)
	}

	switch s.Driver {
	case DriverRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return &domain.ConfigurationError{Field: "redis.addr", Reason: "is required when driver is redis"}
		}
	case DriverBadger:
		if !s.Badger.InMemory && strings.TrimSpace(s.Badger.Path) == "" {
			return &domain.ConfigurationError{Field: "badger.path", Reason: "is required when in_memory is false"}
		}
	}
	if s.Events.Redis.Enabled && s.Driver != DriverRedis && strings.TrimSpace(s.Redis.Addr) == "" {
		return &domain.ConfigurationError{Field: "redis.addr", Reason: "is required when events.redis.enabled is true"}
	}
	return nil
}

func (l LoggingSettings) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Environment, validation.In("dev", "prod")),
	)
}

func (e EventSettings) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Redis),
		validation.Field(&e.Throttle),
	)
}

func (r RedisEventSettings) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Bucket, validation.In("minute", "none")),
		validation.Field(&r.TTL, validation.Min(time.Duration(0))),
	)
}

func (t EventThrottleSettings) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.RPS, validation.Min(0.0)),
		validation.Field(&t.Burst, validation.When(t.RPS > 0, validation.Required, validation.Min(1))),
	)
}

// BreakerConfig converte os defaults para domain.Config.
func (s *Settings) BreakerConfig() domain.Config {
	d := s.Defaults
	return domain.Config{
		FailureThreshold:  d.FailureThreshold,
		SuccessThreshold:  d.SuccessThreshold,
		TimeWindow:        seconds(d.TimeWindow),
		OpenTimeout:       seconds(d.OpenTimeout),
		HalfOpenTimeout:   seconds(d.HalfOpenTimeout),
		ExceptionsEnabled: d.ExceptionsEnabled,
	}
}

func (s *Settings) Overrides() map[string]domain.Override {
	out := make(map[string]domain.Override, len(s.Services))
	for name, o := range s.Services {
		out[name] = domain.Override{
			FailureThreshold:  o.FailureThreshold,
			SuccessThreshold:  o.SuccessThreshold,
			TimeWindow:        secondsPtr(o.TimeWindow),
			OpenTimeout:       secondsPtr(o.OpenTimeout),
			HalfOpenTimeout:   secondsPtr(o.HalfOpenTimeout),
			ExceptionsEnabled: o.ExceptionsEnabled,
		}
	}
	return out
}

// Resolver monta o domain.ConfigResolver (valida thresholds).
func (s *Settings) Resolver() (*domain.ConfigResolver, error) {
	return domain.NewConfigResolver(s.BreakerConfig(), s.Overrides())
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func secondsPtr(n *int) *time.Duration {
	if n == nil {
		return nil
	}
	d := seconds(*n)
	return &d
}

// toConfigurationError pega o primeiro campo (em ordem alfabética) e desce
// por erros aninhados para montar o caminho "events.redis.bucket".
func toConfigurationError(err error) error {
	field, leaf := firstFieldError(err)
	if field == "" {
		return &domain.ConfigurationError{Field: "config", Reason: err.Error(), Err: err}
	}
	return &domain.ConfigurationError{Field: field, Reason: leaf.Error(), Err: err}
}

func firstFieldError(err error) (string, error) {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "", err
	}
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	k := keys[0]
	sub, leaf := firstFieldError(errs[k])
	if sub == "" {
		return k, leaf
	}
	return k + "." + sub, leaf
}
