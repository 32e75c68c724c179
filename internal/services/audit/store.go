// Package audit persists message completion reports and job launch events to
// SQLite and answers the aggregate queries behind the latency and throughput
// metrics.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS message_audit (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id   TEXT NOT NULL,
	job_type     TEXT NOT NULL DEFAULT '',
	worker_pod   TEXT NOT NULL DEFAULT '',
	queued_at    TIMESTAMP,
	picked_at    TIMESTAMP,
	processed_at TIMESTAMP NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT '',
	log_file     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_message_audit_processed_at ON message_audit(processed_at);

CREATE TABLE IF NOT EXISTS job_audit (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id     TEXT NOT NULL,
	job_type   TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL
);
`

// Store is the SQLite-backed audit store.
type Store struct {
	db     *sql.DB
	logger arbor.ILogger
}

// Open opens (and creates if needed) the audit database at path and applies
// the schema. The parent directory is created when missing.
func Open(path string, logger arbor.ILogger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// SQLite serializes writers; one connection avoids lock contention.
	db.SetMaxOpenConns(1)

	store := NewWithDB(db, logger)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply audit schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Audit database ready")
	return store, nil
}

// NewWithDB wraps an existing database handle; tests pass a mock.
func NewWithDB(db *sql.DB, logger arbor.ILogger) *Store {
	return &Store{db: db, logger: logger}
}

// InsertMessage appends one completion report. Not idempotent: replayed
// reports insert additional rows.
func (s *Store) InsertMessage(ctx context.Context, rec *models.MessageAuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_audit
			(message_id, job_type, worker_pod, queued_at, picked_at, processed_at, duration_ms, status, log_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MessageID, rec.JobType, rec.WorkerPod,
		rec.QueuedAt, rec.PickedAt, rec.ProcessedAt,
		rec.DurationMS, rec.Status, rec.LogFile,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message audit: %w", err)
	}
	return nil
}

// InsertJobEvent appends one job lifecycle event.
func (s *Store) InsertJobEvent(ctx context.Context, jobID, jobType, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_audit (job_id, job_type, status, created_at)
		VALUES (?, ?, ?, ?)`,
		jobID, jobType, status, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job audit: %w", err)
	}
	return nil
}

// AvgDurationMS returns the mean processing duration over the trailing
// window, 0 when no records fall inside it.
func (s *Store) AvgDurationMS(ctx context.Context, window time.Duration) (float64, error) {
	cutoff := time.Now().UTC().Add(-window)
	var avg float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(duration_ms), 0) FROM message_audit WHERE processed_at >= ?`,
		cutoff,
	).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("failed to query average duration: %w", err)
	}
	return avg, nil
}

// CountSince returns the number of messages processed within the trailing
// window.
func (s *Store) CountSince(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM message_audit WHERE processed_at >= ?`,
		cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to query throughput count: %w", err)
	}
	return count, nil
}

// Recent returns up to limit records, newest processed_at first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.MessageAuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, job_type, worker_pod, queued_at, picked_at, processed_at, duration_ms, status, log_file
		FROM message_audit
		ORDER BY processed_at DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent audit records: %w", err)
	}
	defer rows.Close()

	records := []models.MessageAuditRecord{}
	for rows.Next() {
		var rec models.MessageAuditRecord
		var queuedAt, pickedAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.MessageID, &rec.JobType, &rec.WorkerPod,
			&queuedAt, &pickedAt, &rec.ProcessedAt,
			&rec.DurationMS, &rec.Status, &rec.LogFile,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.QueuedAt = queuedAt.Time
		rec.PickedAt = pickedAt.Time
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit records: %w", err)
	}
	return records, nil
}

// Prune deletes message records processed before the cutoff.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM message_audit WHERE processed_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit records: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned records: %w", err)
	}
	return removed, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for stores sharing the database file.
func (s *Store) DB() *sql.DB {
	return s.db
}
