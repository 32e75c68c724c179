package handlers

import (
	"net/http"

	"github.com/ternarybob/armada/internal/common"
)

// HealthHandler serves liveness and version probes.
type HealthHandler struct{}

// NewHealthHandler creates the health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HealthzHandler handles GET /healthz. Unauthenticated by design: probes and
// load balancers hit it.
func (h *HealthHandler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": common.GetVersion(),
	})
}
