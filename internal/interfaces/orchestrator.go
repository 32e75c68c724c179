package interfaces

import (
	"context"

	"github.com/ternarybob/armada/internal/models"
)

// OrchestratorClient abstracts the container orchestrator for the scaling
// controller. The orchestrator owns worker job truth; this interface only
// observes and requests changes. Tests inject fakes.
type OrchestratorClient interface {
	// ListWorkerJobs returns every job carrying the shared worker label in
	// the configured namespace, classified per observation rules.
	ListWorkerJobs(ctx context.Context) ([]models.WorkerJobRecord, error)

	// CreateWorkerJob launches one worker job for the given type spec and
	// returns the generated job name.
	CreateWorkerJob(ctx context.Context, spec models.JobTypeSpec) (string, error)

	// DeleteWorkerJob requests background-propagation deletion of the named job.
	DeleteWorkerJob(ctx context.Context, name string) error

	// PodLogs returns the log tail of any pod belonging to the named job,
	// restricted to the last sinceMinutes (all output when 0). found is
	// false when the job has no pods yet.
	PodLogs(ctx context.Context, jobName string, sinceMinutes int) (logs string, found bool, err error)

	// ClusterInfo returns nodes, recent events and pod summaries for the
	// cluster view.
	ClusterInfo(ctx context.Context) (*models.ClusterInfo, error)
}
