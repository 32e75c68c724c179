package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/interfaces"
)

// LogsHandler streams worker pod logs through the orchestrator.
type LogsHandler struct {
	orch   interfaces.OrchestratorClient
	logger arbor.ILogger
}

// NewLogsHandler creates the pod logs handler.
func NewLogsHandler(orch interfaces.OrchestratorClient, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{orch: orch, logger: logger}
}

// GetLogsHandler handles GET /logs/{job_name}?since_minutes=N.
func (h *LogsHandler) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobName := strings.TrimPrefix(r.URL.Path, "/logs/")
	if jobName == "" || strings.Contains(jobName, "/") {
		WriteError(w, http.StatusBadRequest, "Job name is required")
		return
	}

	sinceMinutes := 0
	if raw := r.URL.Query().Get("since_minutes"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			sinceMinutes = v
		}
	}

	logs, found, err := h.orch.PodLogs(r.Context(), jobName, sinceMinutes)
	if err != nil {
		h.logger.Error().Err(err).Str("job", jobName).Msg("Pod log fetch failed")
		WriteError(w, http.StatusInternalServerError, "Failed to fetch logs")
		return
	}
	if !found {
		WriteText(w, http.StatusOK, "No pods found for this job yet.")
		return
	}

	WriteText(w, http.StatusOK, logs)
}
