package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Agent profiles (static configuration, read-only)
		r.Get("/agents", h.ListAgentProfiles)

		// Cost aggregation
		r.Get("/costs", h.CostSummary)
		r.Get("/costs/totals", h.CostTotals)

		// Events
		r.Get("/events/recent", h.RecentEvents)
		r.Post("/events", h.PostEvent)
	})
}
