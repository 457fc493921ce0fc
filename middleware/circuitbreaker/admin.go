package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"breaker-gateway/middleware/circuitbreaker/domain"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Admin é o que as operações administrativas precisam do Manager.
type Admin interface {
	Services() []string
	State(ctx context.Context, service string) (domain.State, error)
	ForceState(ctx context.Context, service string, state domain.State, ttl time.Duration) error
	ClearOverride(ctx context.Context, service string) error
}

type AdminOptions struct {
	// Gatherer, se definido, expõe /metrics.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type circuitStatus struct {
	Service string `json:"service"`
	State   string `json:"state"`
}

type overrideRequest struct {
	State      string `json:"state"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// AdminHandler monta as rotas:
//
//	GET    /healthz
//	GET    /circuits
//	GET    /circuits/{service}
//	PUT    /circuits/{service}/override   {"state":"open","ttl_seconds":60}
//	DELETE /circuits/{service}/override
//	GET    /metrics
func AdminHandler(a Admin, opts AdminOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := adminHandlers{admin: a, log: log}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Route("/circuits", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{service}", h.status)
		r.Put("/{service}/override", h.force)
		r.Delete("/{service}/override", h.clear)
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type adminHandlers struct {
	admin Admin
	log   *zap.Logger
}

func (h adminHandlers) list(w http.ResponseWriter, r *http.Request) {
	out := make([]circuitStatus, 0)
	for _, svc := range h.admin.Services() {
		st, err := h.admin.State(r.Context(), svc)
		if err != nil {
			h.fail(w, svc, err)
			return
		}
		out = append(out, circuitStatus{Service: svc, State: st.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h adminHandlers) status(w http.ResponseWriter, r *http.Request) {
	svc := chi.URLParam(r, "service")
	st, err := h.admin.State(r.Context(), svc)
	if err != nil {
		h.fail(w, svc, err)
		return
	}
	writeJSON(w, http.StatusOK, circuitStatus{Service: svc, State: st.String()})
}

func (h adminHandlers) force(w http.ResponseWriter, r *http.Request) {
	svc := chi.URLParam(r, "service")

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.TTLSeconds < 0 {
		jsonError(w, "ttl_seconds must be >= 0", http.StatusBadRequest)
		return
	}
	st, err := domain.ParseState(req.State)
	if err != nil {
		h.fail(w, svc, err)
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := h.admin.ForceState(r.Context(), svc, st, ttl); err != nil {
		h.fail(w, svc, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     svc,
		"state":       st.String(),
		"ttl_seconds": req.TTLSeconds,
	})
}

func (h adminHandlers) clear(w http.ResponseWriter, r *http.Request) {
	svc := chi.URLParam(r, "service")
	if err := h.admin.ClearOverride(r.Context(), svc); err != nil {
		h.fail(w, svc, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail traduz os erros do domínio para status HTTP.
func (h adminHandlers) fail(w http.ResponseWriter, svc string, err error) {
	var ise *domain.InvalidStateError
	var se *domain.StorageError
	switch {
	case errors.As(err, &ise), errors.Is(err, domain.ErrEmptyService):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &se):
		h.log.Error("admin storage error", zap.String("service", svc), zap.Error(err))
		jsonError(w, "storage unavailable: "+err.Error(), http.StatusServiceUnavailable)
	default:
		h.log.Error("admin error", zap.String("service", svc), zap.Error(err))
		jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
