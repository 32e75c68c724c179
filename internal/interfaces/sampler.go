package interfaces

// ResourceSampler reports controller-process host utilization for the
// dashboard. Implementations return the previous sample on probe failure.
type ResourceSampler interface {
	// Sample returns current CPU and memory utilization percentages.
	Sample() (cpuPercent float64, memPercent float64)
}
