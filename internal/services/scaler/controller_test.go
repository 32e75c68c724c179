package scaler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/armada/internal/common"
	"github.com/ternarybob/armada/internal/models"
	"github.com/ternarybob/armada/internal/services/state"
)

// queueState is the fake broker's per-queue answer.
type queueState struct {
	ready   int
	unacked int
	err     error
}

type fakeBroker struct {
	queues map[string]queueState
}

func (f *fakeBroker) QueueStats(_ context.Context, queue string) (int, int, error) {
	q := f.queues[queue]
	return q.ready, q.unacked, q.err
}

// fakeOrchestrator tracks creations and deletions; the jobs slice is the
// observation returned by the next tick.
type fakeOrchestrator struct {
	jobs    []models.WorkerJobRecord
	created []string
	deleted []string
	nextID  int
}

func (f *fakeOrchestrator) ListWorkerJobs(context.Context) ([]models.WorkerJobRecord, error) {
	out := make([]models.WorkerJobRecord, len(f.jobs))
	copy(out, f.jobs)
	return out, nil
}

func (f *fakeOrchestrator) CreateWorkerJob(_ context.Context, spec models.JobTypeSpec) (string, error) {
	f.nextID++
	name := fmt.Sprintf("%s-%06d", spec.TypeID, f.nextID)
	f.created = append(f.created, name)
	return name, nil
}

func (f *fakeOrchestrator) DeleteWorkerJob(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	for i := range f.jobs {
		if f.jobs[i].Name == name {
			f.jobs[i].Terminating = true
		}
	}
	return nil
}

func (f *fakeOrchestrator) PodLogs(context.Context, string, int) (string, bool, error) {
	return "", false, nil
}

func (f *fakeOrchestrator) ClusterInfo(context.Context) (*models.ClusterInfo, error) {
	return &models.ClusterInfo{}, nil
}

type fakeAudit struct {
	jobEvents []string
	avg       float64
	count     int
}

func (f *fakeAudit) InsertMessage(context.Context, *models.MessageAuditRecord) error { return nil }
func (f *fakeAudit) InsertJobEvent(_ context.Context, jobID, jobType, status string) error {
	f.jobEvents = append(f.jobEvents, fmt.Sprintf("%s/%s/%s", jobID, jobType, status))
	return nil
}
func (f *fakeAudit) AvgDurationMS(context.Context, time.Duration) (float64, error) {
	return f.avg, nil
}
func (f *fakeAudit) CountSince(context.Context, time.Duration) (int, error) { return f.count, nil }
func (f *fakeAudit) Recent(context.Context, int) ([]models.MessageAuditRecord, error) {
	return nil, nil
}
func (f *fakeAudit) Prune(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakeAudit) Close() error                                    { return nil }

type fixedSampler struct{ cpu, mem float64 }

func (f fixedSampler) Sample() (float64, float64) { return f.cpu, f.mem }

type harness struct {
	controller *Controller
	broker     *fakeBroker
	orch       *fakeOrchestrator
	audit      *fakeAudit
	state      *state.SharedState
	cfg        *common.Config
}

func newHarness(t *testing.T, specs ...models.JobTypeSpec) *harness {
	t.Helper()

	cfg := common.NewDefaultConfig()
	shared := state.New(cfg.Scaler.MaxJobs)
	broker := &fakeBroker{queues: map[string]queueState{}}
	orch := &fakeOrchestrator{}
	aud := &fakeAudit{}

	return &harness{
		controller: New(cfg, common.NewCatalog(specs...), broker, orch, aud,
			fixedSampler{cpu: 12.5, mem: 40.0}, shared, common.GetLogger()),
		broker: broker,
		orch:   orch,
		audit:  aud,
		state:  shared,
		cfg:    cfg,
	}
}

func spendSpec() models.JobTypeSpec {
	return models.JobTypeSpec{TypeID: "spend-analysis", Queue: "spend_queue", Image: "worker-spend:latest", Threshold: 10}
}

func activeJob(name, typeID string, age time.Duration) models.WorkerJobRecord {
	return models.WorkerJobRecord{
		Name:      name,
		TypeID:    typeID,
		Phase:     models.JobPhaseRunning,
		Active:    1,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestTick_DeepBacklogBurstsWithinBudget(t *testing.T) {
	h := newHarness(t, spendSpec())
	// 25 ready is past twice the threshold of 10, so the burst path fires.
	// Budget 3 with no active jobs clips the burst cap of 5 down to 3.
	h.broker.queues["spend_queue"] = queueState{ready: 25}

	h.controller.tick(context.Background())

	assert.Len(t, h.orch.created, 3)
	assert.Len(t, h.audit.jobEvents, 3)
	assert.Contains(t, h.audit.jobEvents[0], "spend-analysis/SPAWNED")

	snap := h.state.Snapshot()
	assert.Equal(t, int64(3), snap.Metrics.TotalSpawned)
	assert.Equal(t, 3, snap.Metrics.ActiveJobs)
	assert.Equal(t, 25, snap.Metrics.QueueDepth)
}

func TestTick_ModerateBacklogSpawnsOne(t *testing.T) {
	h := newHarness(t, spendSpec())
	// Past the threshold but not past twice it: one launch per tick.
	h.broker.queues["spend_queue"] = queueState{ready: 15}

	h.controller.tick(context.Background())
	assert.Len(t, h.orch.created, 1)

	h.orch.jobs = []models.WorkerJobRecord{activeJob(h.orch.created[0], "spend-analysis", time.Minute)}
	h.controller.tick(context.Background())
	assert.Len(t, h.orch.created, 2)
}

func TestTick_BacklogAtThresholdDoesNotSpawn(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{ready: 10}

	h.controller.tick(context.Background())
	assert.Empty(t, h.orch.created)
}

func TestTick_IdleRatchetDeletesAfterThreshold(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{}
	h.orch.jobs = []models.WorkerJobRecord{activeJob("spend-old", "spend-analysis", time.Hour)}

	ctx := context.Background()

	// Five idle ticks arm the machine without firing it.
	for i := 1; i <= 5; i++ {
		h.controller.tick(ctx)
		assert.Equal(t, i, h.state.IdleTicks("spend-analysis"), "tick %d", i)
		assert.Empty(t, h.orch.deleted)
	}

	// The sixth idle tick reaches the threshold and deletes the worker;
	// the counter ratchets back one tick instead of restarting.
	h.controller.tick(ctx)
	assert.Equal(t, []string{"spend-old"}, h.orch.deleted)
	assert.Equal(t, 5, h.state.IdleTicks("spend-analysis"))

	// The deleted job is terminating: the next idle tick finds no
	// candidate and must not delete it again.
	h.controller.tick(ctx)
	assert.Len(t, h.orch.deleted, 1)
}

func TestTick_RatchetRemovesOnePerTickAcrossSeveralWorkers(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{}
	h.orch.jobs = []models.WorkerJobRecord{
		activeJob("spend-oldest", "spend-analysis", 3*time.Hour),
		activeJob("spend-middle", "spend-analysis", 2*time.Hour),
		activeJob("spend-newest", "spend-analysis", time.Hour),
	}

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		h.controller.tick(ctx)
	}
	require.Equal(t, []string{"spend-oldest"}, h.orch.deleted)

	// Sustained idleness retires one worker per subsequent tick, always
	// the oldest remaining.
	h.controller.tick(ctx)
	assert.Equal(t, []string{"spend-oldest", "spend-middle"}, h.orch.deleted)
	h.controller.tick(ctx)
	assert.Equal(t, []string{"spend-oldest", "spend-middle", "spend-newest"}, h.orch.deleted)
}

func TestTick_UnackedWorkProtectsWorkers(t *testing.T) {
	h := newHarness(t, spendSpec())
	// Queue drained but messages are still in flight: the type is not idle.
	h.broker.queues["spend_queue"] = queueState{ready: 0, unacked: 2}
	h.orch.jobs = []models.WorkerJobRecord{activeJob("spend-busy", "spend-analysis", time.Hour)}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		h.controller.tick(ctx)
	}

	assert.Empty(t, h.orch.deleted)
	assert.Equal(t, 0, h.state.IdleTicks("spend-analysis"))
	assert.False(t, h.state.Snapshot().Metrics.ScalingStatus["spend-analysis"].IsIdle)
}

func TestTick_PendingWorkResetsIdleCount(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{}
	h.orch.jobs = []models.WorkerJobRecord{activeJob("spend-busy", "spend-analysis", time.Hour)}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		h.controller.tick(ctx)
	}
	require.Equal(t, 4, h.state.IdleTicks("spend-analysis"))

	// New work arrives; the countdown restarts from zero.
	h.broker.queues["spend_queue"] = queueState{ready: 1}
	h.controller.tick(ctx)
	assert.Equal(t, 0, h.state.IdleTicks("spend-analysis"))
	assert.Empty(t, h.orch.deleted)
}

func TestTick_SaturatedBudgetBlocksSpawning(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{ready: 500}
	h.orch.jobs = []models.WorkerJobRecord{
		activeJob("spend-a", "spend-analysis", time.Minute),
		activeJob("spend-b", "spend-analysis", time.Minute),
		activeJob("spend-c", "spend-analysis", time.Minute),
	}

	h.controller.tick(context.Background())

	// min(burst cap 5, budget 3 - 3 active) leaves nothing to launch.
	assert.Empty(t, h.orch.created)
	assert.Equal(t, 3, h.state.Snapshot().Metrics.ActiveJobs)
}

func TestTick_FinishedJobsFreeTheirSlot(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{ready: 15}
	h.orch.jobs = []models.WorkerJobRecord{
		{Name: "spend-done", TypeID: "spend-analysis", Phase: models.JobPhaseSucceeded, Succeeded: 1},
		{Name: "spend-fail", TypeID: "spend-analysis", Phase: models.JobPhaseFailed, Failed: 1},
	}

	h.controller.tick(context.Background())
	assert.Len(t, h.orch.created, 1)
}

func TestTick_BudgetIsGlobalAcrossTypes(t *testing.T) {
	transSpec := models.JobTypeSpec{TypeID: "transactions", Queue: "trans_queue", Image: "worker-trans:latest", Threshold: 10}
	h := newHarness(t, spendSpec(), transSpec)

	// Both types have deep backlogs; the global budget of 3 is shared in
	// sorted type order.
	h.broker.queues["spend_queue"] = queueState{ready: 100}
	h.broker.queues["trans_queue"] = queueState{ready: 100}

	h.controller.tick(context.Background())

	require.Len(t, h.orch.created, 3)
	// Sorted order visits spend-analysis first.
	assert.Contains(t, h.orch.created[0], "spend-analysis")
}

func TestTick_ProbeFailureReadsAsEmptyQueue(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.orch.jobs = []models.WorkerJobRecord{
		activeJob("spend-old", "spend-analysis", 2*time.Hour),
		activeJob("spend-new", "spend-analysis", time.Hour),
	}
	h.broker.queues["spend_queue"] = queueState{err: fmt.Errorf("broker unreachable")}

	ctx := context.Background()

	// An unreachable broker counts as an empty queue, so the idle machine
	// keeps advancing through the outage.
	for i := 1; i <= 5; i++ {
		h.controller.tick(ctx)
		assert.Equal(t, i, h.state.IdleTicks("spend-analysis"), "tick %d", i)
		assert.Empty(t, h.orch.deleted)
	}

	// A sustained outage drains the fleet one worker per tick, oldest first.
	h.controller.tick(ctx)
	assert.Equal(t, []string{"spend-old"}, h.orch.deleted)
	h.controller.tick(ctx)
	assert.Equal(t, []string{"spend-old", "spend-new"}, h.orch.deleted)

	assert.Empty(t, h.orch.created)
}

func TestTick_ProbeFailureNeverSpawns(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{err: fmt.Errorf("broker unreachable")}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		h.controller.tick(ctx)
	}

	assert.Empty(t, h.orch.created)
	assert.Equal(t, 0, h.state.Snapshot().Metrics.QueueDepth)
}

type panickingOrchestrator struct {
	fakeOrchestrator
}

func (p *panickingOrchestrator) ListWorkerJobs(context.Context) ([]models.WorkerJobRecord, error) {
	panic("client-go blew up")
}

type failingOrchestrator struct {
	fakeOrchestrator
}

func (f *failingOrchestrator) ListWorkerJobs(context.Context) ([]models.WorkerJobRecord, error) {
	return nil, fmt.Errorf("api server unreachable")
}

func TestTick_ContainsPanics(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.controller.orch = &panickingOrchestrator{}

	require.NotPanics(t, func() {
		h.controller.tick(context.Background())
	})
	assert.Equal(t, "Error", h.state.Snapshot().Metrics.StatusMsg)
}

func TestTick_ObservationFailureFlagsError(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.controller.orch = &failingOrchestrator{}
	h.broker.queues["spend_queue"] = queueState{ready: 100}

	h.controller.tick(context.Background())

	assert.Empty(t, h.orch.created)
	assert.Equal(t, "Error", h.state.Snapshot().Metrics.StatusMsg)

	// The next healthy tick clears the flag.
	h.controller.orch = h.orch
	h.broker.queues["spend_queue"] = queueState{}
	h.controller.tick(context.Background())
	assert.Equal(t, "Running", h.state.Snapshot().Metrics.StatusMsg)
}

func TestTick_UncataloguedJobsDoNotCount(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{ready: 15}
	// Leftover workers of a type no longer in the catalog must not consume
	// budget or skew the active total.
	h.orch.jobs = []models.WorkerJobRecord{
		activeJob("retired-aaa111", "retired-type", time.Hour),
		activeJob("retired-bbb222", "retired-type", time.Hour),
		activeJob("retired-ccc333", "retired-type", time.Hour),
	}

	h.controller.tick(context.Background())

	assert.Len(t, h.orch.created, 1)

	m := h.state.Snapshot().Metrics
	sum := 0
	for _, s := range m.ScalingStatus {
		sum += s.Active
	}
	assert.Equal(t, sum, m.ActiveJobs)
}

func TestTick_PublishesDerivedMetrics(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{ready: 4, unacked: 1}
	h.audit.avg = 850.5
	h.audit.count = 12

	var pushed *models.StatsResponse
	h.controller.OnTick(func(snap models.StatsResponse) { pushed = &snap })

	h.controller.tick(context.Background())

	m := h.state.Snapshot().Metrics
	assert.Equal(t, 4, m.QueueDepth)
	assert.Equal(t, 1, m.Unacked)
	assert.Equal(t, 850.5, m.AvgLatencyMS)
	assert.Equal(t, 12, m.ThroughputPerMinute)
	assert.Equal(t, 12.5, m.CPUPercent)
	assert.Equal(t, 40.0, m.MemoryPercent)
	assert.Equal(t, "Running", m.StatusMsg)

	require.NotNil(t, pushed)
	assert.Equal(t, 4, pushed.Metrics.QueueDepth)
}

func TestTick_ScalingStatusCountdown(t *testing.T) {
	h := newHarness(t, spendSpec())
	h.broker.queues["spend_queue"] = queueState{}
	h.orch.jobs = []models.WorkerJobRecord{activeJob("spend-busy", "spend-analysis", time.Hour)}

	ctx := context.Background()
	h.controller.tick(ctx)
	h.controller.tick(ctx)

	// Two idle ticks at 5 seconds each; threshold 6 leaves 4 ticks to go.
	status := h.state.Snapshot().Metrics.ScalingStatus["spend-analysis"]
	assert.True(t, status.IsIdle)
	assert.Equal(t, 1, status.Active)
	assert.Equal(t, 10, status.IdleSeconds)
	assert.Equal(t, 20, status.ScaleDownInSeconds)
}
