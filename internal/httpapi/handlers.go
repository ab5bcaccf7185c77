package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/engram-memory/engram/internal/hydrate"
	"github.com/engram-memory/engram/internal/memory"
)

type handlers struct {
	svc    *memory.Service
	hyd    *hydrate.Hydrator
	uptime func() float64
}

// Health handles GET /health.
func (h *handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"version":  h.svc.Capabilities().Version,
		"uptime_s": h.uptime(),
	})
}

// Capabilities handles GET /capabilities.
func (h *handlers) Capabilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Capabilities())
}

// Remember handles POST /remember.
func (h *handlers) Remember(w http.ResponseWriter, r *http.Request) {
	var in memory.RememberInput
	if !decodeBody(w, r, &in) {
		return
	}
	result, err := h.svc.Remember(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Recall handles POST /recall.
func (h *handlers) Recall(w http.ResponseWriter, r *http.Request) {
	var in memory.RecallInput
	if !decodeBody(w, r, &in) {
		return
	}
	result, err := h.svc.Recall(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Forget handles POST /forget.
func (h *handlers) Forget(w http.ResponseWriter, r *http.Request) {
	var in memory.ForgetInput
	if !decodeBody(w, r, &in) {
		return
	}
	result, err := h.svc.Forget(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Hydrate handles POST /context/hydrate. As with /recall, the query is
// optional (an empty one runs recent mode); the capability gate is checked
// per request.
func (h *handlers) Hydrate(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Capabilities().ContextHydration {
		writeError(w, http.StatusForbidden, "context hydration is disabled")
		return
	}
	var in hydrate.Input
	if !decodeBody(w, r, &in) {
		return
	}
	result, err := h.hyd.Hydrate(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeServiceError maps the core error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, memory.ErrFeatureDisabled):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
