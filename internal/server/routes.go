package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Worker-facing report endpoints. Unauthenticated: workers inside the
	// cluster post here with no credentials.
	mux.HandleFunc("/report", s.app.ReportHandler.ProgressHandler)
	mux.HandleFunc("/report-message", s.app.ReportHandler.MessageHandler)

	// Dashboard read endpoints (basic auth when enabled)
	mux.HandleFunc("/stats", s.requireAuth(s.app.StatsHandler.GetStatsHandler))
	mux.HandleFunc("/audit", s.requireAuth(s.app.AuditHandler.ListHandler))
	mux.HandleFunc("/audit/log", s.requireAuth(s.app.AuditHandler.LogFileHandler))
	mux.HandleFunc("/logs/", s.requireAuth(s.app.LogsHandler.GetLogsHandler))
	mux.HandleFunc("/cluster-info", s.requireAuth(s.app.ClusterHandler.GetClusterInfoHandler))

	// WebSocket stats push
	mux.HandleFunc("/ws", s.requireAuth(s.app.WSHandler.HandleWebSocket))

	// Liveness probe
	mux.HandleFunc("/healthz", s.app.HealthHandler.HealthzHandler)

	return mux
}
