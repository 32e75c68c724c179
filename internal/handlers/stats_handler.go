package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/services/state"
)

func nowUTC() time.Time { return time.Now().UTC() }

// StatsHandler serves the aggregated metrics snapshot.
type StatsHandler struct {
	state  *state.SharedState
	logger arbor.ILogger
}

// NewStatsHandler creates the stats handler.
func NewStatsHandler(shared *state.SharedState, logger arbor.ILogger) *StatsHandler {
	return &StatsHandler{state: shared, logger: logger}
}

// GetStatsHandler handles GET /stats.
func (h *StatsHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.state.Snapshot())
}
