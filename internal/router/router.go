package router

import (
	"context"
	"net/http"
	"time"

	_ "certivax/docs"
	mem "certivax/internal/adapters/storage/memory"
	"certivax/internal/domain/registry"
	"certivax/internal/middleware"
	"certivax/internal/platform/logger"
	"certivax/internal/ports/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// HealthCheck reporta el estado de una dependencia (store, redis...).
type HealthCheck func(ctx context.Context) error

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Si es nil se arma un servicio in-memory (sin owner hasta Bootstrap).
	Service *registry.Service

	Logger logger.Logger

	// Default promhttp.Handler().
	MetricsHandler http.Handler

	HealthChecks map[string]HealthCheck
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier, log))
	r.Use(middleware.RequestLog(log))

	r.Get("/health", healthHandler(opts.HealthChecks))

	metrics := opts.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	svc := opts.Service
	if svc == nil {
		svc = registry.NewService(mem.NewStore(), registry.Options{Logger: log})
	}
	registry.RegisterRoutes(r, svc)

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = err.Error()
				continue
			}
			body[name] = "ok"
		}
		writeJSON(w, status, body)
	}
}
