package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the orchestrator for every Prometheus metric the proxy
// exposes: request outcomes, queue depth, model lifecycle transitions, and
// the per-instance resource samples the scheduler gathers.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	queueDepth      *prometheus.GaugeVec
	queueRejected   *prometheus.CounterVec
	stateTransition *prometheus.CounterVec
	instanceMemory  *prometheus.GaugeVec
	instanceCPU     *prometheus.GaugeVec
	instanceUptime  *prometheus.GaugeVec
}

const (
	namespace = "llm_proxifier"
)

// NewCollector creates a Collector registered against registry. If
// registry is nil, a fresh prometheus.Registry is created (callers that
// want the global default registry should pass prometheus.DefaultRegisterer's
// registry explicitly).
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total forwarded requests by model and outcome.",
		}, []string{"model", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Forwarded request latency, from dispatch to final byte.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"model"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of pending requests for a model.",
		}, []string{"model"}),
		queueRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_rejected_total",
			Help:      "Requests rejected because a model's queue was full.",
		}, []string{"model"}),
		stateTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_state_transitions_total",
			Help:      "Model lifecycle state transitions.",
		}, []string{"model", "state"}),
		instanceMemory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_memory_mb",
			Help:      "Resident set size of a running model process, in MB.",
		}, []string{"model"}),
		instanceCPU: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_cpu_percent",
			Help:      "CPU utilization of a running model process.",
		}, []string{"model"}),
		instanceUptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_uptime_seconds",
			Help:      "Seconds since a model process last became ready.",
		}, []string{"model"}),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.queueDepth,
		c.queueRejected,
		c.stateTransition,
		c.instanceMemory,
		c.instanceCPU,
		c.instanceUptime,
	)

	return c
}

// RecordRequest records one completed (or failed) forward.
func (c *Collector) RecordRequest(model, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(model, status).Inc()
	c.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordQueueRejected records one request turned away for a full queue.
func (c *Collector) RecordQueueRejected(model string) {
	c.queueRejected.WithLabelValues(model).Inc()
}

// SetQueueDepth updates the current pending-request gauge for model.
func (c *Collector) SetQueueDepth(model string, depth int) {
	c.queueDepth.WithLabelValues(model).Set(float64(depth))
}

// RecordStateTransition records one lifecycle transition for model.
func (c *Collector) RecordStateTransition(model, state string) {
	c.stateTransition.WithLabelValues(model, state).Inc()
}

// SetInstanceMemory updates the resident-set-size gauge for model.
// Callers that could not sample a value should simply skip that call.
func (c *Collector) SetInstanceMemory(model string, mb float64) {
	c.instanceMemory.WithLabelValues(model).Set(mb)
}

// SetInstanceCPU updates the CPU utilization gauge for model.
func (c *Collector) SetInstanceCPU(model string, percent float64) {
	c.instanceCPU.WithLabelValues(model).Set(percent)
}

// SetInstanceUptime updates the uptime gauge for model.
func (c *Collector) SetInstanceUptime(model string, uptime time.Duration) {
	c.instanceUptime.WithLabelValues(model).Set(uptime.Seconds())
}

// ClearInstance removes every per-model gauge reading for model, called
// once it has stopped so stale values don't linger on the next scrape.
func (c *Collector) ClearInstance(model string) {
	c.instanceMemory.DeleteLabelValues(model)
	c.instanceCPU.DeleteLabelValues(model)
	c.instanceUptime.DeleteLabelValues(model)
	c.queueDepth.DeleteLabelValues(model)
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
