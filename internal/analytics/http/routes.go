package analytichttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/clinicamia/findash/internal/platform/httpx"
)

// exportLimit caps CSV exports per client per minute.
const exportLimit = 10

// MountRoutes registers the dashboard endpoints under /finance/dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportLimit, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export limit reached, retry in a minute")
		}),
	)

	r.Route("/finance/dashboard", func(r chi.Router) {
		r.Get("/kpis", h.handleKPIs)
		r.Get("/executive", h.handleExecutive)
		r.Get("/trend", h.handleTrend)
		r.Get("/departments", h.handleDepartments)
		r.Get("/liquidity", h.handleLiquidity)
		r.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/kpis/export.csv", h.handleKPICSV)
			gr.Get("/trend/export.csv", h.handleTrendCSV)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
