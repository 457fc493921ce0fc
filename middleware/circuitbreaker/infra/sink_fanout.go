package infra

import (
	"context"
	"errors"

	"breaker-gateway/middleware/circuitbreaker/domain"
)

// FanOut entrega o evento a todos os sinks, em ordem. Um erro não impede os
// demais; os erros voltam juntos (errors.Join).
type FanOut []domain.EventSink

var _ domain.EventSink = FanOut(nil)

func (f FanOut) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sinks monta o sink final: nenhum vira NopSink, um vira ele mesmo.
func Sinks(sinks ...domain.EventSink) domain.EventSink {
	var out FanOut
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return domain.NopSink{}
	case 1:
		return out[0]
	}
	return out
}
