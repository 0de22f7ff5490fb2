package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger-authz/internal/auth"
	"github.com/odyssey-erp/ledger-authz/internal/observability"
	"github.com/odyssey-erp/ledger-authz/internal/platform/httpx"
)

// HealthChecker reports dependency health for /healthz.
type HealthChecker func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	AuthHandler *auth.Handler
	Metrics     *observability.Metrics
	// Checks are run by /healthz; a failing check yields 503.
	Checks map[string]HealthChecker
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthHandler(params.Checks))

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", r.URL.Path)
	})

	return r
}

func healthHandler(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		httpx.JSON(w, status, map[string]any{"status": state, "checks": results})
	}
}
