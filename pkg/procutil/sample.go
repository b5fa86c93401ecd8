package procutil

import (
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// RSSMB returns the resident set size of pid in megabytes. It returns
// (0, false) if the process is gone, permission is denied, or sampling
// otherwise fails — callers surface this as a null field, never an error.
func RSSMB(pid int32) (float64, bool) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return 0, false
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0, false
	}
	return float64(info.RSS) / (1024 * 1024), true
}

// CPUPercent returns pid's average CPU utilization percentage over its
// whole lifetime (total CPU time divided by time since process start); no
// state is kept between calls. Same best-effort, fail-to-absent contract as
// RSSMB.
func CPUPercent(pid int32) (float64, bool) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return 0, false
	}
	pct, err := proc.CPUPercent()
	if err != nil {
		return 0, false
	}
	return pct, true
}

// SystemMemory is a snapshot of host-wide memory usage, surfaced by
// /health's system.memory object.
type SystemMemory struct {
	TotalMB     float64 `json:"total_mb"`
	UsedMB      float64 `json:"used_mb"`
	AvailableMB float64 `json:"available_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// SampleSystemMemory reads current host memory usage. Returns false if the
// underlying sampling fails (e.g. unsupported platform).
func SampleSystemMemory() (SystemMemory, bool) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return SystemMemory{}, false
	}
	return SystemMemory{
		TotalMB:     float64(vm.Total) / (1024 * 1024),
		UsedMB:      float64(vm.Used) / (1024 * 1024),
		AvailableMB: float64(vm.Available) / (1024 * 1024),
		UsedPercent: vm.UsedPercent,
	}, true
}
