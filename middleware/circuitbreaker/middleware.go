package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"go.uber.org/zap"
)

// Breaker é o que o middleware precisa do Manager.
type Breaker interface {
	CanPass(ctx context.Context, service string) (bool, error)
	RecordFailure(ctx context.Context, service string) error
	RecordSuccess(ctx context.Context, service string) error
}

type ServiceFunc func(r *http.Request) string

type Options struct {
	Breaker       Breaker
	Service       string
	ServiceHeader string
	ServiceFn     ServiceFunc
	RejectStatus  int
	RetryAfter    time.Duration
	// IsFailure classifica a resposta do upstream. Padrão: status >= 500.
	IsFailure func(status int) bool
	// FailOpen deixa a request seguir quando o storage do breaker falha.
	FailOpen        bool
	AddStateHeaders bool
	Logger          *zap.Logger
}

// DefaultServiceFunc: header (se configurado e presente), depois o nome fixo,
// depois o primeiro segmento do path.
//
// Header e path vêm do cliente. Cada nome distinto vira um breaker no Manager
// e uma série no Prometheus; exponha assim só quando o conjunto de nomes for
// limitado por quem está na frente (ou fixe service).
func DefaultServiceFunc(service, header string) ServiceFunc {
	return func(r *http.Request) string {
		if header != "" {
			if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
				return v
			}
		}
		if service != "" {
			return service
		}
		seg := strings.TrimPrefix(r.URL.Path, "/")
		if i := strings.IndexByte(seg, '/'); i >= 0 {
			seg = seg[:i]
		}
		return seg
	}
}

func DefaultIsFailure(status int) bool { return status >= http.StatusInternalServerError }

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.ServiceFn == nil {
		opts.ServiceFn = DefaultServiceFunc(opts.Service, opts.ServiceHeader)
	}
	if opts.IsFailure == nil {
		opts.IsFailure = DefaultIsFailure
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		if opts.Breaker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			service := opts.ServiceFn(r)
			if service == "" {
				next.ServeHTTP(w, r)
				return
			}
			if opts.AddStateHeaders {
				w.Header().Set("X-Circuit-Service", service)
			}

			ok, err := opts.Breaker.CanPass(r.Context(), service)
			switch {
			case errors.Is(err, domain.ErrCircuitOpen):
				ok = false
			case err != nil:
				log.Error("circuit breaker unavailable",
					zap.String("service", service),
					zap.Bool("fail_open", opts.FailOpen),
					zap.Error(err),
				)
				if !opts.FailOpen {
					http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if !ok {
				if opts.AddStateHeaders {
					w.Header().Set("X-Circuit-State", domain.Open.String())
				}
				if opts.RetryAfter > 0 {
					w.Header().Set("Retry-After", formatInt(int(opts.RetryAfter.Seconds())))
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// o cliente pode ter desconectado; o resultado ainda conta
			ctx := context.WithoutCancel(r.Context())
			if opts.IsFailure(rec.status) {
				err = opts.Breaker.RecordFailure(ctx, service)
			} else {
				err = opts.Breaker.RecordSuccess(ctx, service)
			}
			if err != nil {
				log.Error("circuit breaker record failed",
					zap.String("service", service),
					zap.Int("status", rec.status),
					zap.Error(err),
				)
			}
		})
	}
}

// statusRecorder guarda o status escrito pelo handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
