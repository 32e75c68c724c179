package models

// ScalingStatus is the per-type view of the scale-down state machine,
// exported for the dashboard.
type ScalingStatus struct {
	Active             int  `json:"active"`
	IdleSeconds        int  `json:"idle_seconds"`
	ScaleDownInSeconds int  `json:"scale_down_in_seconds"`
	IsIdle             bool `json:"is_idle"`
}

// MetricsSnapshot aggregates observed state across all job types.
// Published atomically by the controller once per tick; report handlers
// bump the counters between ticks.
type MetricsSnapshot struct {
	QueueDepth          int                      `json:"queue_depth"`
	Unacked             int                      `json:"unacked"`
	ActiveJobs          int                      `json:"active_jobs"`
	MaxJobs             int                      `json:"max_jobs"`
	TotalSpawned        int64                    `json:"total_spawned"`
	TotalConsumed       int64                    `json:"total_consumed"`
	AvgLatencyMS        float64                  `json:"avg_latency_ms"`
	ThroughputPerMinute int                      `json:"throughput_per_minute"`
	CPUPercent          float64                  `json:"cpu_percent"`
	MemoryPercent       float64                  `json:"memory_percent"`
	StatusMsg           string                   `json:"status_msg"`
	ScalingStatus       map[string]ScalingStatus `json:"scaling_status"`
}

// StatsResponse is the payload served by GET /stats and pushed over the
// WebSocket after every controller tick.
type StatsResponse struct {
	Metrics MetricsSnapshot   `json:"metrics"`
	Jobs    []WorkerJobRecord `json:"jobs"`
}

// Cluster inspection payloads for GET /cluster-info.

type NodeInfo struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	CPU    string `json:"cpu"`
	Memory string `json:"memory"`
	OS     string `json:"os"`
	Kernel string `json:"kernel"`
}

type EventInfo struct {
	Type    string `json:"type"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Object  string `json:"object"`
	Time    string `json:"time"`
}

type PodInfo struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	IP       string `json:"ip"`
	Node     string `json:"node"`
	Restarts int    `json:"restarts"`
}

type ClusterInfo struct {
	Nodes  []NodeInfo  `json:"nodes"`
	Events []EventInfo `json:"events"`
	Pods   []PodInfo   `json:"pods"`
}
