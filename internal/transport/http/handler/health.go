package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler handles health-check and test endpoints.
type HealthHandler struct {
	liveConnections func() int
}

// NewHealthHandler takes the live connection counter reported by
// /health-check/live. It may be nil.
func NewHealthHandler(liveConnections func() int) *HealthHandler {
	return &HealthHandler{liveConnections: liveConnections}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "live":
		n := 0
		if h.liveConnections != nil {
			n = h.liveConnections()
		}
		writeJSON(w, http.StatusOK, map[string]int{"live_connections": n})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *HealthHandler) Test(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "ok"})
}
