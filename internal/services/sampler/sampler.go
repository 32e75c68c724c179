// Package sampler reads host CPU and memory utilisation for the stats feed.
package sampler

import (
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/ternarybob/arbor"
)

// HostSampler samples CPU and memory usage of the controller host. A probe
// failure returns the previous sample so the stats feed never flaps to zero.
type HostSampler struct {
	logger arbor.ILogger

	mu      sync.Mutex
	lastCPU float64
	lastMem float64
}

// NewHostSampler creates a sampler that logs probe failures at debug level.
func NewHostSampler(logger arbor.ILogger) *HostSampler {
	return &HostSampler{logger: logger}
}

// Sample returns current CPU and memory usage percentages.
func (h *HostSampler) Sample() (cpuPercent, memPercent float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		h.logger.Debug().Err(err).Msg("CPU sample failed, keeping previous value")
	} else {
		h.lastCPU = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		h.logger.Debug().Err(err).Msg("Memory sample failed, keeping previous value")
	} else {
		h.lastMem = vm.UsedPercent
	}

	return h.lastCPU, h.lastMem
}
