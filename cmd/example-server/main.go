package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"breaker-gateway/middleware/circuitbreaker"
	"breaker-gateway/middleware/circuitbreaker/application"
	"breaker-gateway/middleware/circuitbreaker/domain"
	"breaker-gateway/middleware/circuitbreaker/infra"
	"breaker-gateway/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy),
	// com estado em memória.
	log, err := logger.New("debug", "dev")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	storage := infra.NewMemoryStorage()
	storage.StartJanitor(ctx)

	three := 3
	resolver, err := domain.NewConfigResolver(domain.DefaultConfig(), map[string]domain.Override{
		"payment": {FailureThreshold: &three},
	})
	if err != nil {
		log.Fatal("config error", zap.Error(err))
	}

	manager := application.NewManager(storage, resolver,
		application.WithEventSink(infra.NewLogEventSink(log)),
		application.WithLogger(log),
	)

	mux := http.NewServeMux()
	// metade das chamadas a /payment falham
	mux.HandleFunc("/payment", func(w http.ResponseWriter, r *http.Request) {
		if rand.Intn(2) == 0 {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("paid\n"))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/admin/", http.StripPrefix("/admin", circuitbreaker.AdminHandler(manager, circuitbreaker.AdminOptions{Logger: log})))

	h := circuitbreaker.Middleware(circuitbreaker.Options{
		Breaker: manager,
		// serviço = primeiro segmento do path (/payment -> "payment")
		ServiceFn: func(r *http.Request) string {
			if strings.HasPrefix(r.URL.Path, "/admin/") {
				return ""
			}
			return circuitbreaker.DefaultServiceFunc("", "")(r)
		},
		RetryAfter:      10 * time.Second,
		AddStateHeaders: true,
		Logger:          log,
	})(mux)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
}
