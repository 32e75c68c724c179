// Package state owns all process-wide mutable observation state.
//
// The controller loop and the HTTP report handlers mutate this state
// concurrently; every mutation happens behind a single mutex and readers get
// deep copies, so one GET /stats always observes a consistent snapshot.
package state

import (
	"sync"

	"github.com/ternarybob/armada/internal/models"
)

// SharedState is the single owner of in-memory controller state: the
// published metrics snapshot, the observed job history, per-job progress
// counters and the per-type idle tick counters of the scale-down machine.
type SharedState struct {
	mu sync.Mutex

	metrics   models.MetricsSnapshot
	history   []models.WorkerJobRecord
	progress  map[string]int64
	idleTicks map[string]int

	totalSpawned  int64
	totalConsumed int64
}

// New creates shared state with an initial metrics snapshot.
func New(maxJobs int) *SharedState {
	return &SharedState{
		metrics: models.MetricsSnapshot{
			MaxJobs:       maxJobs,
			StatusMsg:     "Initializing",
			ScalingStatus: map[string]models.ScalingStatus{},
		},
		progress:  map[string]int64{},
		idleTicks: map[string]int{},
	}
}

// AddProgress records a cumulative progress report for a worker job and
// bumps the aggregate consumed counter. Progress entries are retained until
// process restart; they are display-only and not authoritative.
func (s *SharedState) AddProgress(jobName string, processed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[jobName] += processed
	s.totalConsumed += processed
	s.metrics.TotalConsumed = s.totalConsumed
}

// IncrementConsumed bumps the aggregate consumed counter by n.
func (s *SharedState) IncrementConsumed(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalConsumed += n
	s.metrics.TotalConsumed = s.totalConsumed
}

// IncrementSpawned records one successful worker job launch.
func (s *SharedState) IncrementSpawned() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSpawned++
	s.metrics.TotalSpawned = s.totalSpawned
}

// Progress returns the cumulative processed count reported for a job.
func (s *SharedState) Progress(jobName string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress[jobName]
}

// IdleTicks returns the current idle tick count for a job type.
func (s *SharedState) IdleTicks(typeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleTicks[typeID]
}

// SetIdleTicks sets the idle tick count for a job type. Negative values
// clamp to zero.
func (s *SharedState) SetIdleTicks(typeID string, ticks int) {
	if ticks < 0 {
		ticks = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleTicks[typeID] = ticks
}

// SetHistory replaces the observed job history.
func (s *SharedState) SetHistory(history []models.WorkerJobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
}

// PublishMetrics atomically replaces the metrics snapshot. The aggregate
// spawn/consume counters are owned here, so the published snapshot always
// carries their current values regardless of what the caller filled in.
func (s *SharedState) PublishMetrics(m models.MetricsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.TotalSpawned = s.totalSpawned
	m.TotalConsumed = s.totalConsumed
	if m.ScalingStatus == nil {
		m.ScalingStatus = map[string]models.ScalingStatus{}
	}
	s.metrics = m
}

// SetStatusMsg updates only the status message of the published snapshot.
// Used by the controller when a tick fails.
func (s *SharedState) SetStatusMsg(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.StatusMsg = msg
}

// Snapshot returns a deep copy of the published metrics and job history,
// with per-job progress folded into the history rows for display.
func (s *SharedState) Snapshot() models.StatsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := s.metrics
	metrics.ScalingStatus = make(map[string]models.ScalingStatus, len(s.metrics.ScalingStatus))
	for typeID, status := range s.metrics.ScalingStatus {
		metrics.ScalingStatus[typeID] = status
	}

	jobs := make([]models.WorkerJobRecord, len(s.history))
	copy(jobs, s.history)
	for i := range jobs {
		jobs[i].Processed = s.progress[jobs[i].Name]
	}

	return models.StatsResponse{Metrics: metrics, Jobs: jobs}
}
