// Package scaler implements the per-type scaling control loop: probe queue
// depth, launch worker jobs when backlog exceeds the type threshold, and
// retire idle workers after a sustained quiet period.
package scaler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/armada/internal/common"
	"github.com/ternarybob/armada/internal/interfaces"
	"github.com/ternarybob/armada/internal/models"
	"github.com/ternarybob/armada/internal/services/state"
)

// Aggregation windows for the derived metrics.
const (
	latencyWindow    = 10 * time.Minute
	throughputWindow = time.Minute
)

// Controller runs the scaling loop. One instance per process; every decision
// happens inside a single tick, so no internal locking is needed beyond the
// shared state's own.
type Controller struct {
	cfg     *common.Config
	catalog *common.Catalog
	broker  interfaces.BrokerClient
	orch    interfaces.OrchestratorClient
	audit   interfaces.AuditStore
	sampler interfaces.ResourceSampler
	state   *state.SharedState
	logger  arbor.ILogger

	// onTick, when set, receives the fresh snapshot after every tick.
	// The WebSocket broadcaster hangs off this.
	onTick func(models.StatsResponse)
}

// New wires a controller. All dependencies are required except the sampler,
// which may be nil when host sampling is unavailable.
func New(
	cfg *common.Config,
	catalog *common.Catalog,
	broker interfaces.BrokerClient,
	orch interfaces.OrchestratorClient,
	audit interfaces.AuditStore,
	sampler interfaces.ResourceSampler,
	shared *state.SharedState,
	logger arbor.ILogger,
) *Controller {
	return &Controller{
		cfg:     cfg,
		catalog: catalog,
		broker:  broker,
		orch:    orch,
		audit:   audit,
		sampler: sampler,
		state:   shared,
		logger:  logger,
	}
}

// OnTick registers a callback invoked with the snapshot after each tick.
func (c *Controller) OnTick(fn func(models.StatsResponse)) {
	c.onTick = fn
}

// Run ticks at the configured poll interval until the context is cancelled.
// The first tick fires immediately.
func (c *Controller) Run(ctx context.Context) {
	interval := c.cfg.Scaler.PollDuration()
	c.logger.Info().
		Dur("interval", interval).
		Int("max_jobs", c.cfg.Scaler.MaxJobs).
		Int("job_types", c.catalog.Len()).
		Msg("Scaling loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.tick(ctx)
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Scaling loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// tick performs one full observe-decide-act cycle. Each tick is its own
// failure domain: nothing that happens inside may take the loop down.
func (c *Controller) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("panic", fmt.Sprint(r)).Msg("Tick panicked")
			c.state.SetStatusMsg("Error")
		}
	}()

	jobs, err := c.orch.ListWorkerJobs(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Job observation failed, skipping tick")
		c.state.SetStatusMsg("Error")
		return
	}
	c.state.SetHistory(jobs)

	// Active jobs occupy a budget slot until they finish. Terminating jobs
	// still occupy their slot but are never scale-down candidates again.
	// Jobs whose type has left the catalog are invisible to the budget.
	activeByType := map[string][]models.WorkerJobRecord{}
	totalActive := 0
	for _, job := range jobs {
		if !job.Occupying() {
			continue
		}
		if _, ok := c.catalog.Spec(job.TypeID); !ok {
			continue
		}
		totalActive++
		activeByType[job.TypeID] = append(activeByType[job.TypeID], job)
	}

	totalReady, totalUnacked := 0, 0
	scaling := map[string]models.ScalingStatus{}

	for _, typeID := range c.catalog.TypeIDs() {
		spec, _ := c.catalog.Spec(typeID)
		active := activeByType[typeID]

		ready, unacked, err := c.broker.QueueStats(ctx, spec.Queue)
		if err != nil {
			// An unreachable broker reads as an empty queue. With workers
			// still active the idle machine keeps counting, so a sustained
			// outage drains the fleet instead of pinning it.
			c.logger.Warn().Err(err).Str("type", typeID).Str("queue", spec.Queue).
				Msg("Queue probe failed, treating queue as empty")
			ready, unacked = 0, 0
		}
		totalReady += ready
		totalUnacked += unacked

		spawned := c.scaleUp(ctx, spec, ready, totalActive)
		totalActive += spawned

		pending := ready + unacked
		idle := c.scaleDown(ctx, typeID, active, pending)
		scaling[typeID] = c.scalingStatus(typeID, len(active)+spawned, idle)
	}

	c.publish(ctx, totalReady, totalUnacked, totalActive, scaling)
}

// scaleUp launches workers for one type when backlog exceeds its threshold.
// Returns the number of jobs launched. A backlog beyond twice the threshold
// bursts several launches in one tick, bounded by the burst cap and the
// remaining global budget; otherwise one job at a time.
func (c *Controller) scaleUp(ctx context.Context, spec models.JobTypeSpec, ready, totalActive int) int {
	if ready <= spec.Threshold || totalActive >= c.cfg.Scaler.MaxJobs {
		return 0
	}

	count := 1
	if ready > 2*spec.Threshold {
		count = c.cfg.Scaler.BurstCap
		if budget := c.cfg.Scaler.MaxJobs - totalActive; count > budget {
			count = budget
		}
	}

	launched := 0
	for i := 0; i < count; i++ {
		name, err := c.orch.CreateWorkerJob(ctx, spec)
		if err != nil {
			c.logger.Error().Err(err).Str("type", spec.TypeID).Msg("Worker launch failed")
			break
		}
		launched++
		c.state.IncrementSpawned()
		c.state.SetIdleTicks(spec.TypeID, 0)

		if err := c.audit.InsertJobEvent(ctx, name, spec.TypeID, models.JobAuditStatusSpawned); err != nil {
			c.logger.Warn().Err(err).Str("job", name).Msg("Job audit write failed")
		}
	}

	if launched > 0 {
		c.logger.Info().Str("type", spec.TypeID).Int("launched", launched).Int("ready", ready).
			Msg("Scaled up")
	}
	return launched
}

// scaleDown advances the idle state machine for one type and reports whether
// the type is currently idle. Any pending work (ready or unacknowledged)
// resets the idle count. Once the count reaches the threshold, the oldest
// non-terminating job of the type is deleted and the count ratchets back by
// one tick, so further deletions proceed one per tick while idleness holds.
func (c *Controller) scaleDown(ctx context.Context, typeID string, active []models.WorkerJobRecord, pending int) bool {
	if pending > 0 || len(active) == 0 {
		c.state.SetIdleTicks(typeID, 0)
		return false
	}

	ticks := c.state.IdleTicks(typeID) + 1
	c.state.SetIdleTicks(typeID, ticks)

	if ticks < c.cfg.Scaler.IdleThreshold {
		return true
	}

	victim := oldestDeletable(active)
	if victim == nil {
		return true
	}

	if err := c.orch.DeleteWorkerJob(ctx, victim.Name); err != nil {
		c.logger.Warn().Err(err).Str("job", victim.Name).Msg("Scale-down delete failed")
		return true
	}
	c.logger.Info().Str("job", victim.Name).Str("type", typeID).Msg("Scaled down idle worker")

	// Ratchet: stay one tick under the threshold so the next fully idle
	// tick removes another worker without restarting the whole countdown.
	c.state.SetIdleTicks(typeID, c.cfg.Scaler.IdleThreshold-1)
	return true
}

// oldestDeletable picks the active job with the earliest creation time,
// skipping jobs already being torn down.
func oldestDeletable(active []models.WorkerJobRecord) *models.WorkerJobRecord {
	var oldest *models.WorkerJobRecord
	for i := range active {
		job := &active[i]
		if job.Terminating {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	return oldest
}

// scalingStatus renders the per-type idle machine for the dashboard.
func (c *Controller) scalingStatus(typeID string, active int, idle bool) models.ScalingStatus {
	pollSeconds := int(c.cfg.Scaler.PollDuration().Seconds())
	ticks := c.state.IdleTicks(typeID)

	remaining := (c.cfg.Scaler.IdleThreshold - ticks) * pollSeconds
	if remaining < 0 {
		remaining = 0
	}
	return models.ScalingStatus{
		Active:             active,
		IdleSeconds:        ticks * pollSeconds,
		ScaleDownInSeconds: remaining,
		IsIdle:             idle,
	}
}

// publish derives the aggregate metrics and pushes the snapshot.
func (c *Controller) publish(ctx context.Context, ready, unacked, active int, scaling map[string]models.ScalingStatus) {
	m := models.MetricsSnapshot{
		QueueDepth:    ready,
		Unacked:       unacked,
		ActiveJobs:    active,
		MaxJobs:       c.cfg.Scaler.MaxJobs,
		StatusMsg:     "Running",
		ScalingStatus: scaling,
	}

	if avg, err := c.audit.AvgDurationMS(ctx, latencyWindow); err == nil {
		m.AvgLatencyMS = avg
	} else {
		c.logger.Debug().Err(err).Msg("Latency query failed")
	}
	if count, err := c.audit.CountSince(ctx, throughputWindow); err == nil {
		m.ThroughputPerMinute = count
	} else {
		c.logger.Debug().Err(err).Msg("Throughput query failed")
	}
	if c.sampler != nil {
		m.CPUPercent, m.MemoryPercent = c.sampler.Sample()
	}

	c.state.PublishMetrics(m)

	if c.onTick != nil {
		c.onTick(c.state.Snapshot())
	}
}
