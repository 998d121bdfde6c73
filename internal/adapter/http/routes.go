package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/crucible-dev/crucible/internal/adapter/otel"
	"github.com/crucible-dev/crucible/internal/config"
)

// NewRouter builds the full chi router with middleware and all API routes.
func NewRouter(h *Handlers, cfg config.Server) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigin))
	r.Use(Logger)
	r.Use(otel.HTTPMiddleware("crucible-api"))
	r.Use(BearerAuth(cfg.APITokenHash))

	MountRoutes(r, h)
	return r
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)
	r.Get("/ws", h.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agents
		r.Get("/agents", h.ListAgents)

		// Circuit breakers
		r.Get("/circuits", h.ListCircuits)
		r.Post("/circuits/reset", h.ResetAllCircuits)
		r.Get("/circuits/{agent}", h.GetCircuit)
		r.Post("/circuits/{agent}/reset", h.ResetCircuit)

		// Decisions
		r.Post("/decisions", h.ExecuteDecision)

		// Checkpoints
		r.Get("/tasks/{id}/checkpoints", h.ListCheckpoints)

		// Actions
		r.Post("/actions", h.RegisterAction)
		r.Get("/actions", h.ListActions)
		r.Get("/actions/{id}", h.GetAction)
		r.Post("/actions/{id}/abort", h.AbortAction)
	})
}
