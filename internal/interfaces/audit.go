package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/armada/internal/models"
)

// AuditStore persists per-message completion reports and job launch events,
// and answers the aggregate queries the controller derives metrics from.
// Inserts are not idempotent; duplicate reports produce duplicate rows.
type AuditStore interface {
	InsertMessage(ctx context.Context, rec *models.MessageAuditRecord) error
	InsertJobEvent(ctx context.Context, jobID, jobType, status string) error

	// AvgDurationMS returns the mean duration_ms over records whose
	// processed_at falls within the trailing window; 0 when there are none.
	AvgDurationMS(ctx context.Context, window time.Duration) (float64, error)

	// CountSince returns the number of records processed within the
	// trailing window.
	CountSince(ctx context.Context, window time.Duration) (int, error)

	// Recent returns the most recent records ordered by processed_at descending.
	Recent(ctx context.Context, limit int) ([]models.MessageAuditRecord, error)

	// Prune deletes message records older than the cutoff and returns the
	// number removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// CredentialStore resolves dashboard principals for HTTP basic auth.
type CredentialStore interface {
	// PasswordHash returns the stored hash for the username, or an error
	// when the principal does not exist.
	PasswordHash(ctx context.Context, username string) (string, error)

	// SeedDefault creates the default principal when no principal exists.
	SeedDefault(ctx context.Context) error
}
