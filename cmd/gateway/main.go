package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breaker-gateway/config"
	"breaker-gateway/middleware/circuitbreaker"
	"breaker-gateway/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("CB_CONFIG"), "path to circuit_breaker.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// o logger ainda não existe
		zap.NewExample().Fatal("config error", zap.Error(err))
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Environment)
	if err != nil {
		zap.NewExample().Fatal("logger error", zap.Error(err))
	}

	err = run(cfg, log)
	if err != nil {
		log.Error("gateway stopped", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run sobe o gateway e o servidor admin até o sinal de parada. Só retorna
// depois de fechar o breaker.
func run(cfg *config.Settings, log *zap.Logger) error {
	if cfg.Gateway.UpstreamURL == "" {
		return errors.New("gateway.upstream_url is required (CB_GATEWAY_UPSTREAM_URL)")
	}
	target, err := url.Parse(cfg.Gateway.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid gateway.upstream_url: %w", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager, closeBreaker, err := circuitbreaker.Build(ctx, cfg, log, reg)
	if err != nil {
		return fmt.Errorf("circuit breaker setup: %w", err)
	}
	defer func() {
		if err := closeBreaker(); err != nil {
			log.Warn("circuit breaker close", zap.Error(err))
		}
	}()

	h := circuitbreaker.Middleware(circuitbreaker.Options{
		Breaker:         manager,
		Service:         cfg.Gateway.Service,
		ServiceHeader:   cfg.Gateway.ServiceHeader,
		RejectStatus:    http.StatusServiceUnavailable,
		RetryAfter:      cfg.Gateway.RetryAfter,
		FailOpen:        cfg.Gateway.FailOpen,
		AddStateHeaders: true,
		Logger:          log.Named("middleware"),
	})(proxy)

	srv := &http.Server{
		Addr:              cfg.Gateway.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	admin := &http.Server{
		Addr: cfg.Gateway.AdminAddr,
		Handler: circuitbreaker.AdminHandler(manager, circuitbreaker.AdminOptions{
			Gatherer: reg,
			Logger:   log.Named("admin"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = admin.Shutdown(shutdownCtx)
		_ = srv.Shutdown(shutdownCtx)
	}()

	if cfg.Gateway.AdminAddr != "" {
		go func() {
			log.Info("admin listening", zap.String("addr", cfg.Gateway.AdminAddr))
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin server error", zap.Error(err))
				cancel()
			}
		}()
	}

	log.Info("gateway listening",
		zap.String("addr", cfg.Gateway.ListenAddr),
		zap.Stringer("upstream", target),
		zap.String("driver", cfg.Driver),
		zap.String("service", cfg.Gateway.Service),
		zap.String("service_header", cfg.Gateway.ServiceHeader),
		zap.Bool("fail_open", cfg.Gateway.FailOpen),
		zap.Duration("storage_timeout", cfg.Gateway.StorageTimeout),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
