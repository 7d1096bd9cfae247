package reporthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/costwise/costwise/internal/platform/httpx"
)

// MountRoutes registers the reporting endpoints onto the router. Exports
// and previews replay every ledger, so they sit behind a tighter limiter
// than the cached read endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "retry later")
		}),
	)

	r.Route("/v1/reports", func(r chi.Router) {
		r.Get("/summary", h.handleSummary)
		r.Get("/inventory", h.handleInventory)
		r.Get("/reorder", h.handleReorder)
		r.Get("/dashboard", h.handleDashboard)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/summary/export.csv", h.handleSummaryCSV)
			gr.Get("/inventory/export.csv", h.handleInventoryCSV)
			gr.Post("/preview", h.handlePreview)
		})
	})
	r.Route("/v1/valuation", func(r chi.Router) {
		r.Get("/history", h.handleValuationHistory)
		r.Post("/snapshots", h.handleCaptureValuation)
	})
}
