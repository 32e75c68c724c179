package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/interfaces"
)

// Retention prunes old message audit records on a daily schedule.
type Retention struct {
	store         interfaces.AuditStore
	retentionDays int
	logger        arbor.ILogger
	cron          *cron.Cron
}

// NewRetention creates the pruning schedule. A retention of 0 days disables
// pruning entirely.
func NewRetention(store interfaces.AuditStore, retentionDays int, logger arbor.ILogger) *Retention {
	return &Retention{
		store:         store,
		retentionDays: retentionDays,
		logger:        logger,
		cron:          cron.New(),
	}
}

// Start schedules a daily prune at 03:00 and runs the scheduler in the
// background. No-op when retention is disabled.
func (r *Retention) Start() error {
	if r.retentionDays <= 0 {
		r.logger.Info().Msg("Audit retention pruning disabled")
		return nil
	}
	if _, err := r.cron.AddFunc("0 3 * * *", r.runOnce); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info().Int("retention_days", r.retentionDays).Msg("Audit retention pruning scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running prune to finish.
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Retention) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)
	removed, err := r.store.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Audit prune failed")
		return
	}
	r.logger.Info().Int64("removed", removed).Str("cutoff", cutoff.Format(time.RFC3339)).Msg("Audit prune complete")
}
