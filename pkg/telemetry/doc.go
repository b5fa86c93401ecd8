// Package telemetry groups the proxy's observability subpackages.
//
// # Components
//
//   - logging: structured logging via log/slog
//   - metrics: Prometheus metrics collection
//
// Both are constructed directly by cmd/llm-proxifier and handed down to
// the scheduler, queue manager, and HTTP façade; there is no shared
// top-level telemetry type.
package telemetry
