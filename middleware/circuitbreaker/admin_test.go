package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"breaker-gateway/middleware/circuitbreaker/application"
	"breaker-gateway/middleware/circuitbreaker/domain"
	"breaker-gateway/middleware/circuitbreaker/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestAdmin_StatusForceAndClear(t *testing.T) {
	m := application.NewManager(infra.NewMemoryStorage(), nil)
	h := AdminHandler(m, AdminOptions{})

	w := adminRequest(t, h, http.MethodGet, "/circuits/payment-api", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, circuitStatus{Service: "payment-api", State: "closed"}, decode[circuitStatus](t, w))

	w = adminRequest(t, h, http.MethodPut, "/circuits/payment-api/override", `{"state":"open","ttl_seconds":60}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "open", body["state"])
	assert.Equal(t, float64(60), body["ttl_seconds"])

	ok, err := m.CanPass(context.Background(), "payment-api")
	require.NoError(t, err)
	assert.False(t, ok)

	w = adminRequest(t, h, http.MethodDelete, "/circuits/payment-api/override", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	st, err := m.State(context.Background(), "payment-api")
	require.NoError(t, err)
	assert.Equal(t, domain.Closed, st)
}

func TestAdmin_ListsKnownCircuits(t *testing.T) {
	m := application.NewManager(infra.NewMemoryStorage(), nil)
	require.NoError(t, m.ForceState(context.Background(), "orders", domain.HalfOpen, 0))
	_, err := m.Resolve("auth")
	require.NoError(t, err)

	w := adminRequest(t, AdminHandler(m, AdminOptions{}), http.MethodGet, "/circuits", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []circuitStatus{
		{Service: "auth", State: "closed"},
		{Service: "orders", State: "half_open"},
	}, decode[[]circuitStatus](t, w))
}

func TestAdmin_InvalidStateIsBadRequest(t *testing.T) {
	m := application.NewManager(infra.NewMemoryStorage(), nil)
	h := AdminHandler(m, AdminOptions{})

	w := adminRequest(t, h, http.MethodPut, "/circuits/svc/override", `{"state":"melted"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string]string](t, w)["error"], "invalid state")

	w = adminRequest(t, h, http.MethodPut, "/circuits/svc/override", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = adminRequest(t, h, http.MethodPut, "/circuits/svc/override", `{"state":"open","ttl_seconds":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// failingAdmin devolve StorageError em tudo.
type failingAdmin struct{}

func (failingAdmin) Services() []string { return []string{"svc"} }

func (failingAdmin) State(_ context.Context, service string) (domain.State, error) {
	return domain.Closed, domain.NewStorageError("state", service, errors.New("timeout"))
}

func (failingAdmin) ForceState(_ context.Context, service string, _ domain.State, _ time.Duration) error {
	return domain.NewStorageError("force_state", service, errors.New("timeout"))
}

func (failingAdmin) ClearOverride(_ context.Context, service string) error {
	return domain.NewStorageError("clear_override", service, errors.New("timeout"))
}

func TestAdmin_StorageErrorIsServiceUnavailable(t *testing.T) {
	h := AdminHandler(failingAdmin{}, AdminOptions{})

	assert.Equal(t, http.StatusServiceUnavailable, adminRequest(t, h, http.MethodGet, "/circuits", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, adminRequest(t, h, http.MethodGet, "/circuits/svc", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, adminRequest(t, h, http.MethodPut, "/circuits/svc/override", `{"state":"open"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, adminRequest(t, h, http.MethodDelete, "/circuits/svc/override", "").Code)
}

func TestAdmin_MetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := infra.NewPrometheusEventSink(reg, "")
	require.NoError(t, err)

	m := application.NewManager(infra.NewMemoryStorage(), nil, application.WithEventSink(sink))
	require.NoError(t, m.RecordFailure(context.Background(), "svc"))

	h := AdminHandler(m, AdminOptions{Gatherer: reg})

	w := adminRequest(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `circuit_breaker_events_total{service="svc",type="failure_recorded"} 1`)

	assert.Equal(t, http.StatusOK, adminRequest(t, h, http.MethodGet, "/healthz", "").Code)

	noMetrics := AdminHandler(m, AdminOptions{})
	assert.Equal(t, http.StatusNotFound, adminRequest(t, noMetrics, http.MethodGet, "/metrics", "").Code)
}
