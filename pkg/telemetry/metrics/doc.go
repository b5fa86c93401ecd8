// Package metrics provides Prometheus metrics collection for the proxy.
//
// # Overview
//
// The metrics package tracks forwarded-request outcomes and latency, queue
// depth and rejections, model lifecycle state transitions, and the
// per-instance resource samples (RSS, CPU, uptime) the scheduler gathers
// while a model is running.
//
// # Usage
//
//	collector := metrics.NewCollector(nil)
//	collector.RecordRequest("m1", "success", 820*time.Millisecond)
//	collector.SetQueueDepth("m1", 3)
//	collector.RecordStateTransition("m1", "running")
//
//	http.Handle("/metrics", collector.Handler())
package metrics
