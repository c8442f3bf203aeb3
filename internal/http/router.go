package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"paygate/internal/cache"
	"paygate/internal/config"
	"paygate/internal/http/handlers"
	middlewarex "paygate/internal/http/middleware"
	"paygate/internal/http/respond"
	"paygate/internal/metrics"
	"paygate/internal/provider"
)

// RouterDependencies holds all dependencies for the HTTP router
type RouterDependencies struct {
	Config      config.Cfg
	Registry    *provider.Registry
	Processor   *provider.Processor
	Idempotency cache.IdempotencyStore
	Metrics     *metrics.Metrics
}

func NewRouter(deps RouterDependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarex.APIKeyAuth(deps.Config.App.APIKey))

		r.Get("/providers", handlers.ListProviders(deps.Registry))

		if deps.Processor != nil {
			r.Get("/active", handlers.GetActive(deps.Processor))
			r.Put("/active", handlers.SwitchActive(deps.Processor))
			r.Group(func(r chi.Router) {
				r.Use(middlewarex.ActiveGateway(deps.Processor))
				r.Post("/payments", handlers.CreatePayment(deps.Idempotency))
				r.Post("/verify", handlers.Verify())
			})
		}

		r.Route("/{country}/{provider}", func(r chi.Router) {
			r.Use(middlewarex.ResolveGateway(deps.Registry))
			r.Post("/payments", handlers.CreatePayment(deps.Idempotency))
			r.Post("/transfers", handlers.Transfer())
			r.Get("/balance", handlers.Balance())
			r.Post("/verify", handlers.Verify())
			r.Post("/sessions/{id}/refund", handlers.SessionAction("refund"))
			r.Post("/sessions/{id}/expire", handlers.SessionAction("expire"))
		})
	})

	// provider notifications; authenticated by signature, not API key
	r.Post("/webhooks/{country}/{provider}", handlers.Webhook(deps.Config, deps.Registry, deps.Metrics))

	return r
}
