package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/genapp-poc-v1/server/internal/appgen/metrics"
)

// NewRouter wires the landing, settings and tenant routes.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", h.Landing)
	r.Post("/", h.CreateApp)
	r.Post("/settings", h.UpdateSettings)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		r.MethodFunc(method, "/{tenant}", h.Page)
		r.MethodFunc(method, "/{tenant}/*", h.Page)
	}
	return r
}
