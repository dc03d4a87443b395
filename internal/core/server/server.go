package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/layer-ingest/internal/core/config"
	"github.com/mohammed-shakir/layer-ingest/internal/core/health"
	middleware "github.com/mohammed-shakir/layer-ingest/internal/core/middleware"
	"github.com/mohammed-shakir/layer-ingest/internal/core/router"
)

type Deps struct {
	Layers      router.Ingester
	Invalidator router.Invalidator
	// Metrics defaults to the global Prometheus registry.
	Metrics http.Handler
	// Ready reports invalidation consumer readiness; nil means always ready.
	Ready health.ReadinessReporter
}

// NewHandler wires the HTTP routes.
func NewHandler(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if d.Ready != nil {
		r.Get("/readyz", health.Readiness(d.Ready))
	} else {
		r.Get("/readyz", health.Liveness())
	}
	if cfg.MetricsEnabled {
		m := d.Metrics
		if m == nil {
			m = promhttp.Handler()
		}
		r.Method(http.MethodGet, "/metrics", m)
	}

	r.Get("/layers", router.HandleLayer(logger, d.Layers))
	if d.Invalidator != nil {
		r.Delete("/layers", router.HandleInvalidate(logger, d.Invalidator))
	}
	r.Get("/services/resolve", router.HandleResolve(logger))
	return r
}

// ShutdownGrace bounds how long in-flight layer requests may finish after
// ctx is cancelled.
const ShutdownGrace = 15 * time.Second

// Run serves until ctx is done, then drains in-flight requests. A listen
// failure is returned before any request is served.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Handler:           NewHandler(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a response can only start once the upstream fetch is done
		WriteTimeout: cfg.FetchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.FetchTimeout <= 0 {
		srv.WriteTimeout = 0
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	logger.Info("http listen", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("http shutdown", "grace", ShutdownGrace)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
}
