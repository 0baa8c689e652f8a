// Package httptransport assembles the public HTTP surface. Handlers live
// with their modules; this package only composes them with the shared
// middleware chain and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"courier/internal/platform/middleware"
	"courier/internal/transport/http/shared"
)

// Registrar is anything that can attach its routes to the router.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports the health of one backing dependency.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the module handlers behind the common middleware chain and
// exposes /healthz and /metrics outside of it.
func NewRouter(logger *slog.Logger, checks map[string]HealthCheck, handlers ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Metadata)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/healthz", handleHealth(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	for _, h := range handlers {
		h.Register(r)
	}
	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		shared.WriteJSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": results,
		})
	}
}
