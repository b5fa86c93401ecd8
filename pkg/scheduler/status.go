package scheduler

import "github.com/fluffypony/llm-proxifier/pkg/queue"

// Status is the stable, JSON-serializable shape returned by
// GetModelStatus/GetAllModelStatus, matching the field names named in §4.D.
type Status struct {
	Status            queue.State `json:"status"`
	Port              int         `json:"port"`
	Priority          int         `json:"priority"`
	ResourceGroup     string      `json:"resource_group"`
	Preload           bool        `json:"preload"`
	AutoStart         bool        `json:"auto_start"`
	LastAccessed      *int64      `json:"last_accessed"`
	UptimeSeconds     *float64    `json:"uptime"`
	MemoryUsageMB     *float64    `json:"memory_usage_mb"`
	CPUUsagePercent   *float64    `json:"cpu_usage_percent"`
	RequestCount      int64       `json:"request_count"`
}

// GroupStatus aggregates running/total counts for one resource group.
type GroupStatus struct {
	Group   string `json:"group"`
	Running int    `json:"running"`
	Total   int    `json:"total"`
}

// ReloadResult is the outcome of Manager.Reload.
type ReloadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
