package models

import "time"

// Message completion outcomes reported by workers.
const (
	MessageStatusSuccess = "SUCCESS"
	MessageStatusFailure = "FAILURE"
)

// JobAuditStatusSpawned is written to job_audit when a worker job is created.
const JobAuditStatusSpawned = "SPAWNED"

// MessageAuditRecord is one durable per-message completion report.
// Duplicate reports produce duplicate rows; the store is not idempotent.
type MessageAuditRecord struct {
	ID          int64     `json:"id,omitempty"`
	MessageID   string    `json:"message_id"`
	JobType     string    `json:"job_type"`
	WorkerPod   string    `json:"worker_pod"`
	QueuedAt    time.Time `json:"queued_at"`
	PickedAt    time.Time `json:"picked_at"`
	ProcessedAt time.Time `json:"processed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Status      string    `json:"status"`
	LogFile     string    `json:"log_file"`
}

// JobAuditRecord is one launch event for a worker job.
type JobAuditRecord struct {
	ID        int64     `json:"id,omitempty"`
	JobID     string    `json:"job_id"`
	JobType   string    `json:"job_type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// reportTimeLayouts are the timestamp formats workers are known to send.
// The reference workers format with "%Y-%m-%d %H:%M:%S"; newer ones send
// RFC3339. Anything unparseable yields a zero time rather than an error,
// since audit ingestion must never reject a report over formatting.
var reportTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseReportTime parses a worker-supplied timestamp string.
// Returns the zero time when the value is empty or unrecognized.
func ParseReportTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range reportTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
