package handler

import (
	"net/http"
)

// StoreStatus reports whether the document store client can authenticate.
type StoreStatus interface {
	Configured() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store StoreStatus
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store StoreStatus) *HealthHandler {
	return &HealthHandler{store: store}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store == nil || !h.store.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "document store not configured",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
