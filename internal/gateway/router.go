package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", g.handleHealth())
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if g.config.BearerToken != "" {
			r.Use(authMiddleware(g.config.BearerToken))
		}
		r.Use(g.metrics.middleware)
		r.Use(requireTenant)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", g.handleCreate())
			r.Get("/", g.handleList())
			r.Post("/search", g.handleSearch())
			r.Put("/batch", g.handleBatchUpdate())
			r.Delete("/batch", g.handleBatchDelete())

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", g.handleGet())
				r.Put("/", g.handleUpdate())
				r.Delete("/", g.handleDelete())
				r.Get("/history", g.handleHistory())
				r.Post("/feedback", g.handleFeedback())
			})
		})

		if g.exports != nil {
			r.Post("/exports", g.handleCreateExport())
			r.Get("/exports", g.handleGetExport())
			r.Get("/exports/{id}", g.handleGetExport())
			r.Post("/exports/{id}/import", g.handleImportExport())
		}
	})

	return r
}
