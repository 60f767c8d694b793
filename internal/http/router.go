// Package httpapi assembles the HTTP surface: middleware chain, registration
// routes, health and metrics endpoints.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"enroll/internal/platform/middleware"
	"enroll/internal/registration/handler"
)

// RouterConfig carries everything the router needs wired in.
type RouterConfig struct {
	Registration *handler.Handler
	Sessions     middleware.SessionValidator
	Logger       *slog.Logger

	// FlowTTL bounds how long an abandoned browser flow keeps its cookie.
	FlowTTL time.Duration

	// RequestTimeout bounds each request end to end, provider calls included.
	RequestTimeout time.Duration
}

// NewRouter wires the shared middleware chain and mounts all endpoints.
// Health and metrics sit outside the flow-cookie group so probes never mint
// flow IDs.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.FlowTTL <= 0 {
		cfg.FlowTTL = 24 * time.Hour
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.ClientMetadata)

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(g chi.Router) {
		g.Use(middleware.Flow(cfg.FlowTTL))
		g.Use(middleware.OptionalSession(cfg.Sessions, cfg.Logger))
		cfg.Registration.Register(g)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
