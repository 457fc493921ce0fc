package domain

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config são os thresholds de um serviço. Valor imutável: copie, não altere.
//
// As durações são em segundos inteiros (TTLs do storage são em segundos).
type Config struct {
	FailureThreshold int
	// SuccessThreshold é reservado: hoje um único sucesso fecha o circuito.
	SuccessThreshold  int
	TimeWindow        time.Duration
	OpenTimeout       time.Duration
	HalfOpenTimeout   time.Duration
	ExceptionsEnabled bool
}

// DefaultConfig retorna os valores padrão (5 falhas em 20s abrem por 30s,
// seguidos de 20s em half-open).
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		SuccessThreshold:  1,
		TimeWindow:        20 * time.Second,
		OpenTimeout:       30 * time.Second,
		HalfOpenTimeout:   20 * time.Second,
		ExceptionsEnabled: false,
	}
}

// HalfOpenTTL é o TTL do marcador HALF_OPEN gravado junto com o OPEN.
func (c Config) HalfOpenTTL() time.Duration { return c.OpenTimeout + c.HalfOpenTimeout }

// Validate retorna *ConfigurationError na primeira regra violada.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.SuccessThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.TimeWindow, validation.Min(time.Duration(0)), validation.By(wholeSeconds)),
		validation.Field(&c.OpenTimeout, validation.Required, validation.Min(time.Second), validation.By(wholeSeconds)),
		validation.Field(&c.HalfOpenTimeout, validation.Min(time.Duration(0)), validation.By(wholeSeconds)),
	)
	return configurationError(err)
}

func wholeSeconds(value interface{}) error {
	d, ok := value.(time.Duration)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a duration")
	}
	if d%time.Second != 0 {
		return validation.NewError("validation_whole_seconds", "must be a whole number of seconds")
	}
	return nil
}

// configurationError converte validation.Errors (map campo -> erro) em
// *ConfigurationError, usando o primeiro campo em ordem alfabética.
func configurationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		field := ""
		for k := range verrs {
			if field == "" || k < field {
				field = k
			}
		}
		return &ConfigurationError{Field: field, Reason: verrs[field].Error(), Err: err}
	}
	return &ConfigurationError{Reason: err.Error(), Err: err}
}

// Override é uma sobrescrita parcial por serviço. Campo nil = usa o default.
type Override struct {
	FailureThreshold  *int
	SuccessThreshold  *int
	TimeWindow        *time.Duration
	OpenTimeout       *time.Duration
	HalfOpenTimeout   *time.Duration
	ExceptionsEnabled *bool
}

// Apply mescla campo a campo sobre base.
func (o Override) Apply(base Config) Config {
	out := base
	if o.FailureThreshold != nil {
		out.FailureThreshold = *o.FailureThreshold
	}
	if o.SuccessThreshold != nil {
		out.SuccessThreshold = *o.SuccessThreshold
	}
	if o.TimeWindow != nil {
		out.TimeWindow = *o.TimeWindow
	}
	if o.OpenTimeout != nil {
		out.OpenTimeout = *o.OpenTimeout
	}
	if o.HalfOpenTimeout != nil {
		out.HalfOpenTimeout = *o.HalfOpenTimeout
	}
	if o.ExceptionsEnabled != nil {
		out.ExceptionsEnabled = *o.ExceptionsEnabled
	}
	return out
}

// ConfigResolver resolve a Config efetiva de cada serviço. Função pura após a
// construção: não há estado mutável.
type ConfigResolver struct {
	defaults  Config
	overrides map[string]Override
}

// NewConfigResolver valida os defaults e cada override já mesclado.
func NewConfigResolver(defaults Config, overrides map[string]Override) (*ConfigResolver, error) {
	if err := defaults.Validate(); err != nil {
		return nil, prefixField(err, "defaults")
	}

	r := &ConfigResolver{
		defaults:  defaults,
		overrides: make(map[string]Override, len(overrides)),
	}
	for service, o := range overrides {
		if strings.TrimSpace(service) == "" {
			return nil, &ConfigurationError{Field: "services", Reason: "service name cannot be empty"}
		}
		if err := o.Apply(defaults).Validate(); err != nil {
			return nil, prefixField(err, "services."+service)
		}
		r.overrides[service] = o
	}
	return r, nil
}

func (r *ConfigResolver) Defaults() Config { return r.defaults }

// Resolve retorna os defaults quando não há override para o serviço.
// A busca é exata e depois pelo nome em minúsculas (o viper normaliza as
// chaves do arquivo de configuração).
func (r *ConfigResolver) Resolve(service string) Config {
	o, ok := r.overrides[service]
	if !ok {
		o, ok = r.overrides[strings.ToLower(service)]
	}
	if !ok {
		return r.defaults
	}
	return o.Apply(r.defaults)
}

func prefixField(err error, prefix string) error {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		field := prefix
		if ce.Field != "" {
			field = prefix + "." + ce.Field
		}
		return &ConfigurationError{Field: field, Reason: ce.Reason, Err: ce.Err}
	}
	return err
}
