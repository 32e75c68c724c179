package models

import "time"

// JobPhase is the coarse lifecycle phase of a worker job as observed
// from the orchestrator. Derived from job status counts, not authoritative.
type JobPhase string

const (
	JobPhasePending   JobPhase = "Pending"
	JobPhaseRunning   JobPhase = "Running"
	JobPhaseSucceeded JobPhase = "Succeeded"
	JobPhaseFailed    JobPhase = "Failed"
)

// JobTypeSpec declares one job type from the catalog. Immutable after load.
type JobTypeSpec struct {
	TypeID     string `yaml:"-" json:"type_id"`
	Queue      string `yaml:"queue" json:"queue" validate:"required"`
	Image      string `yaml:"image" json:"image" validate:"required"`
	Threshold  int    `yaml:"threshold" json:"threshold" validate:"gt=0"`
	PullSecret string `yaml:"pull_secret" json:"pull_secret,omitempty"`
}

// WorkerJobRecord is a point-in-time observation of one worker job.
// The orchestrator owns the truth; these records are rebuilt every tick.
type WorkerJobRecord struct {
	Name      string     `json:"name"`
	TypeID    string     `json:"type"`
	Phase     JobPhase   `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	CreatedAt time.Time  `json:"-"`
	Active    int        `json:"-"`
	Succeeded int        `json:"-"`
	Failed    int        `json:"-"`
	// Terminating is true once the orchestrator has stamped a deletion
	// timestamp on the job. Such jobs are never selected for scale-down again.
	Terminating bool `json:"terminating,omitempty"`
	// Processed is filled from worker progress reports for dashboard display.
	Processed int64 `json:"processed"`
}

// Occupying reports whether the job still consumes a budget slot.
// A job occupies a slot until it has either succeeded or failed at least
// once, so Pending jobs count against the budget before any pod exists.
func (r *WorkerJobRecord) Occupying() bool {
	return r.Succeeded == 0 && r.Failed == 0
}
