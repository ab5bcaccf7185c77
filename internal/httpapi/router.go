// Package httpapi serves the Engram HTTP/JSON surface for plugins and the
// CLI. Handlers are thin: they validate, call the memory service, and shape
// responses.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/engram-memory/engram/internal/hydrate"
	"github.com/engram-memory/engram/internal/memory"
)

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(svc *memory.Service, hyd *hydrate.Hydrator, logger *slog.Logger, startedAt func() float64) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	h := &handlers{svc: svc, hyd: hyd, uptime: startedAt}

	r.Get("/health", h.Health)
	r.Get("/capabilities", h.Capabilities)
	r.Post("/remember", h.Remember)
	r.Post("/recall", h.Recall)
	r.Post("/forget", h.Forget)
	r.Post("/context/hydrate", h.Hydrate)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
