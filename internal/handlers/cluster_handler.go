package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/interfaces"
)

// ClusterHandler serves the cluster inspection view.
type ClusterHandler struct {
	orch   interfaces.OrchestratorClient
	logger arbor.ILogger
}

// NewClusterHandler creates the cluster info handler.
func NewClusterHandler(orch interfaces.OrchestratorClient, logger arbor.ILogger) *ClusterHandler {
	return &ClusterHandler{orch: orch, logger: logger}
}

// GetClusterInfoHandler handles GET /cluster-info.
func (h *ClusterHandler) GetClusterInfoHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	info, err := h.orch.ClusterInfo(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Cluster info fetch failed")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch cluster info")
		return
	}
	WriteJSON(w, http.StatusOK, info)
}
