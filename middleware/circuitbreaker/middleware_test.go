package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"breaker-gateway/middleware/circuitbreaker/application"
	"breaker-gateway/middleware/circuitbreaker/domain"
	"breaker-gateway/middleware/circuitbreaker/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeBreaker registra as chamadas recebidas pelo middleware.
type fakeBreaker struct {
	pass      bool
	canErr    error
	recordErr error

	services  []string
	failures  int
	successes int
}

func (f *fakeBreaker) CanPass(_ context.Context, service string) (bool, error) {
	f.services = append(f.services, service)
	return f.pass, f.canErr
}

func (f *fakeBreaker) RecordFailure(context.Context, string) error {
	f.failures++
	return f.recordErr
}

func (f *fakeBreaker) RecordSuccess(context.Context, string) error {
	f.successes++
	return f.recordErr
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		_, _ = io.WriteString(w, http.StatusText(code))
	})
}

func serve(h http.Handler, target string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_RecordsSuccessAndFailure(t *testing.T) {
	fb := &fakeBreaker{pass: true}

	ok := Middleware(Options{Breaker: fb, Service: "svc"})(statusHandler(http.StatusOK))
	bad := Middleware(Options{Breaker: fb, Service: "svc"})(statusHandler(http.StatusBadGateway))
	notFound := Middleware(Options{Breaker: fb, Service: "svc"})(statusHandler(http.StatusNotFound))

	assert.Equal(t, http.StatusOK, serve(ok, "http://example/", nil).Code)
	assert.Equal(t, http.StatusBadGateway, serve(bad, "http://example/", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(notFound, "http://example/", nil).Code)

	assert.Equal(t, 1, fb.failures)
	assert.Equal(t, 2, fb.successes)
}

func TestMiddleware_ImplicitOKCountsAsSuccess(t *testing.T) {
	fb := &fakeBreaker{pass: true}
	h := Middleware(Options{Breaker: fb, Service: "svc"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	serve(h, "http://example/", nil)
	assert.Equal(t, 1, fb.successes)
	assert.Zero(t, fb.failures)
}

func TestMiddleware_BlocksWhenOpen(t *testing.T) {
	fb := &fakeBreaker{pass: false}
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })

	h := Middleware(Options{
		Breaker:         fb,
		Service:         "svc",
		RetryAfter:      30 * time.Second,
		AddStateHeaders: true,
	})(next)

	w := serve(h, "http://example/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "svc", w.Header().Get("X-Circuit-Service"))
	assert.Equal(t, "open", w.Header().Get("X-Circuit-State"))
	assert.Zero(t, calls)
	assert.Zero(t, fb.failures+fb.successes)
}

func TestMiddleware_CircuitOpenErrorIsBlocked(t *testing.T) {
	fb := &fakeBreaker{canErr: &domain.CircuitOpenError{Service: "svc"}}
	h := Middleware(Options{Breaker: fb, Service: "svc", RejectStatus: http.StatusTooManyRequests})(statusHandler(http.StatusOK))

	w := serve(h, "http://example/", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestMiddleware_StorageErrorFailClosedAndFailOpen(t *testing.T) {
	storageErr := domain.NewStorageError("state", "svc", errors.New("connection refused"))

	core, logs := observer.New(zapcore.ErrorLevel)
	closed := Middleware(Options{
		Breaker: &fakeBreaker{canErr: storageErr},
		Service: "svc",
		Logger:  zap.New(core),
	})(statusHandler(http.StatusOK))
	assert.Equal(t, http.StatusServiceUnavailable, serve(closed, "http://example/", nil).Code)

	open := Middleware(Options{
		Breaker:  &fakeBreaker{canErr: storageErr},
		Service:  "svc",
		FailOpen: true,
		Logger:   zap.New(core),
	})(statusHandler(http.StatusOK))
	assert.Equal(t, http.StatusOK, serve(open, "http://example/", nil).Code)

	require.Equal(t, 2, logs.FilterMessage("circuit breaker unavailable").Len())
}

func TestMiddleware_RecordErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	fb := &fakeBreaker{pass: true, recordErr: errors.New("boom")}
	h := Middleware(Options{Breaker: fb, Service: "svc", Logger: zap.New(core)})(statusHandler(http.StatusInternalServerError))

	w := serve(h, "http://example/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("circuit breaker record failed").Len())
}

func TestDefaultServiceFunc(t *testing.T) {
	cases := []struct {
		name    string
		service string
		header  string
		target  string
		hdr     map[string]string
		want    string
	}{
		{"header wins", "fixed", "X-Circuit-Service", "http://example/a/b", map[string]string{"X-Circuit-Service": "from-header"}, "from-header"},
		{"fixed when header absent", "fixed", "X-Circuit-Service", "http://example/a/b", nil, "fixed"},
		{"header ignored unless configured", "fixed", "", "http://example/a/b", map[string]string{"X-Circuit-Service": "from-header"}, "fixed"},
		{"first path segment", "", "", "http://example/orders/42", nil, "orders"},
		{"single segment", "", "", "http://example/search", nil, "search"},
		{"root has no service", "", "", "http://example/", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.target, nil)
			for k, v := range tc.hdr {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, DefaultServiceFunc(tc.service, tc.header)(r))
		})
	}
}

func TestMiddleware_EmptyServiceBypassesBreaker(t *testing.T) {
	fb := &fakeBreaker{pass: false}
	h := Middleware(Options{Breaker: fb})(statusHandler(http.StatusOK))

	assert.Equal(t, http.StatusOK, serve(h, "http://example/", nil).Code)
	assert.Empty(t, fb.services)
}

// Fluxo completo com o Manager real: 5 respostas 502 abrem o circuito e a
// sexta chamada nem chega ao upstream.
func TestMiddleware_OpensCircuitWithRealManager(t *testing.T) {
	m := application.NewManager(infra.NewMemoryStorage(), nil)
	calls := 0
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})
	h := Middleware(Options{Breaker: m, ServiceHeader: "X-Circuit-Service"})(upstream)
	hdr := map[string]string{"X-Circuit-Service": "payment-api"}

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusBadGateway, serve(h, "http://example/pay", hdr).Code)
	}
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, "http://example/pay", hdr).Code)
	assert.Equal(t, 5, calls)

	// outro serviço segue livre
	other := map[string]string{"X-Circuit-Service": "search"}
	assert.Equal(t, http.StatusBadGateway, serve(h, "http://example/pay", other).Code)
	assert.Equal(t, 6, calls)
}
