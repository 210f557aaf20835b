package handlers

import (
	"net/http"
)

// Pinger verifies backing store connectivity for readiness probes.
type Pinger interface {
	Ping() error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new HealthHandler. db may be nil, in which case
// readiness only reports process liveness.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Liveness handles GET /health.
// Always healthy while the process serves requests.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSONOK(w, healthyResponse(nil))
}

// Readiness handles GET /health/ready.
// Ready when the control plane database answers a ping.
func (h *HealthHandler) Readiness(w http.ResponseWriter, _ *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, unhealthyResponse("database unreachable: "+err.Error()))
			return
		}
	}
	WriteJSONOK(w, healthyResponse(map[string]string{"database": "ok"}))
}
