package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/armada/internal/interfaces"
	"github.com/ternarybob/armada/internal/models"
	"github.com/ternarybob/armada/internal/services/state"
)

// ReportHandler ingests worker progress and per-message completion reports.
type ReportHandler struct {
	state   *state.SharedState
	audit   interfaces.AuditStore
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewReportHandler creates the report ingestion handler. The limiter throttles
// per-message audit writes; progress reports are never throttled.
func NewReportHandler(shared *state.SharedState, audit interfaces.AuditStore, limiter *rate.Limiter, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{
		state:   shared,
		audit:   audit,
		limiter: limiter,
		logger:  logger,
	}
}

// progressReport is the POST /report payload workers send after each batch.
type progressReport struct {
	JobName   string `json:"job_name"`
	Processed int64  `json:"processed"`
}

// ProgressHandler handles POST /report.
func (h *ReportHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var report progressReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid report payload")
		return
	}
	if report.JobName == "" {
		WriteError(w, http.StatusBadRequest, "job_name is required")
		return
	}

	h.state.AddProgress(report.JobName, report.Processed)
	h.logger.Debug().
		Str("job", report.JobName).
		Int64("processed", report.Processed).
		Msg("Progress report")

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// messageReport is the POST /report-message payload. Timestamps arrive as
// strings in whatever format the worker produces.
type messageReport struct {
	MessageID   string `json:"message_id"`
	JobType     string `json:"job_type"`
	WorkerPod   string `json:"worker_pod"`
	QueuedAt    string `json:"queued_at"`
	PickedAt    string `json:"picked_at"`
	ProcessedAt string `json:"processed_at"`
	DurationMS  int64  `json:"duration_ms"`
	Status      string `json:"status"`
	LogFile     string `json:"log_file"`
}

// MessageHandler handles POST /report-message.
func (h *ReportHandler) MessageHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		WriteError(w, http.StatusTooManyRequests, "Report rate exceeded, retry later")
		return
	}

	var report messageReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid report payload")
		return
	}
	if report.MessageID == "" {
		WriteError(w, http.StatusBadRequest, "message_id is required")
		return
	}

	rec := &models.MessageAuditRecord{
		MessageID:   report.MessageID,
		JobType:     report.JobType,
		WorkerPod:   report.WorkerPod,
		QueuedAt:    models.ParseReportTime(report.QueuedAt),
		PickedAt:    models.ParseReportTime(report.PickedAt),
		ProcessedAt: models.ParseReportTime(report.ProcessedAt),
		DurationMS:  report.DurationMS,
		Status:      report.Status,
		LogFile:     report.LogFile,
	}
	if rec.ProcessedAt.IsZero() {
		// Reports without a usable completion timestamp still count; they
		// land in the current aggregation windows.
		rec.ProcessedAt = nowUTC()
	}

	// Audit writes must never block acknowledgement; a failed insert is
	// logged and the report still counts.
	if err := h.audit.InsertMessage(r.Context(), rec); err != nil {
		h.logger.Error().Err(err).Str("message_id", report.MessageID).Msg("Audit insert failed")
	}

	h.state.IncrementConsumed(1)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
