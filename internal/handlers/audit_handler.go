package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/interfaces"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler serves the message audit trail and worker log files.
type AuditHandler struct {
	store interfaces.AuditStore
	// logsRoot is the only directory log files may be read from.
	logsRoot string
	logger   arbor.ILogger
}

// NewAuditHandler creates the audit handler rooted at the shared log directory.
func NewAuditHandler(store interfaces.AuditStore, logsRoot string, logger arbor.ILogger) *AuditHandler {
	return &AuditHandler{store: store, logsRoot: logsRoot, logger: logger}
}

// ListHandler handles GET /audit?limit=N.
func (h *AuditHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}

	records, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Audit query failed")
		WriteError(w, http.StatusInternalServerError, "Failed to query audit records")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"records": records,
	})
}

// LogFileHandler handles GET /audit/log?file_path=...
// Relative paths resolve to their basename under the log root; absolute paths
// must already live under the log root. Anything escaping the root is
// rejected before touching the filesystem.
func (h *AuditHandler) LogFileHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	requested := r.URL.Query().Get("file_path")
	if requested == "" {
		WriteError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	path := filepath.Clean(requested)
	if !filepath.IsAbs(path) {
		path = filepath.Join(h.logsRoot, filepath.Base(path))
	}
	if !strings.HasPrefix(path, h.logsRoot+string(filepath.Separator)) {
		h.logger.Warn().Str("file_path", requested).Msg("Rejected log path outside log root")
		WriteError(w, http.StatusForbidden, "Access denied")
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			WriteError(w, http.StatusNotFound, "Log file not found")
			return
		}
		h.logger.Error().Err(err).Str("path", path).Msg("Log file read failed")
		WriteError(w, http.StatusInternalServerError, "Failed to read log file")
		return
	}

	WriteText(w, http.StatusOK, string(content))
}
