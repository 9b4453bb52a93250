package metrics

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemSnapshot holds a point-in-time view of host resources, reported by the
// health endpoint.
type SystemSnapshot struct {
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	MemoryUsedBytes    int64   `json:"memory_used_bytes"`
	DiskUsagePercent   float64 `json:"disk_usage_percent"`
	DiskFreeBytes      int64   `json:"disk_free_bytes"`
	GoRoutines         int     `json:"goroutines"`
	Timestamp          int64   `json:"timestamp"`
}

// CollectSystem gathers a system snapshot. The disk figures are for the
// filesystem holding dataDir. Collection failures of individual probes leave
// the corresponding fields zero rather than failing the snapshot.
func CollectSystem(dataDir string) *SystemSnapshot {
	snap := &SystemSnapshot{
		GoRoutines: runtime.NumGoroutine(),
		Timestamp:  time.Now().Unix(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUUsagePercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemoryUsagePercent = vm.UsedPercent
		snap.MemoryUsedBytes = int64(vm.Used)
	}

	if usage, err := disk.Usage(dataDir); err == nil {
		snap.DiskUsagePercent = usage.UsedPercent
		snap.DiskFreeBytes = int64(usage.Free)
	}

	return snap
}
