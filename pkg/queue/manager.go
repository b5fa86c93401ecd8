// Package queue owns per-model request queues, the authoritative model
// state registry, and rolling request metrics. It is the only component
// that mutates its own maps; the Model Manager is the sole external writer
// of state transitions, and the Queue Manager never calls back into it.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// cleanupInterval is how often the background sweep removes expired
// pending entries from every queue's side index.
const cleanupInterval = 10 * time.Second

// modelEntry bundles one model's state, queue, and metrics under the
// Manager's single mutex.
type modelEntry struct {
	state   State
	queue   *perModelQueue
	metrics *metrics
}

// Manager owns every per-model queue, state, and metrics set. A single
// mutex protects all three maps; queue FIFOs are simple slices guarded by
// that same mutex rather than independently synchronized, since every
// queue operation here is already O(1)-ish and short-lived.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*modelEntry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates an empty Manager. Call Start to begin the background
// expiry sweep.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger,
		entries: make(map[string]*modelEntry),
	}
}

// Start launches the background sweep that removes expired queue entries
// every 10 seconds. It returns immediately; call Stop to cancel.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweepExpired()
			}
		}
	}()
}

// Stop cancels the background sweep and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

func (m *Manager) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, e := range m.entries {
		if n := e.queue.removeExpired(now); n > 0 {
			m.logger.Debug("removed expired queue entries", "model", name, "count", n)
		}
	}
}

// EnsureQueue idempotently creates the queue, state, and metrics entry for
// name if it does not already exist. maxSize of 0 applies the default
// (100).
func (m *Manager) EnsureQueue(name string, maxSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLocked(name, maxSize)
}

func (m *Manager) ensureLocked(name string, maxSize int) *modelEntry {
	e, ok := m.entries[name]
	if !ok {
		e = &modelEntry{
			state:   Stopped,
			queue:   newPerModelQueue(maxSize),
			metrics: newMetrics(),
		}
		m.entries[name] = e
	}
	return e
}

// SetState records a state transition for name, logs it, and — when the
// new state is Running — flushes any expired entries from the queue.
// Requests still pending when a model becomes Running are NOT replayed:
// the client that received a 202 is expected to retry.
func (m *Manager) SetState(name string, newState State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.ensureLocked(name, 0)

	old := e.state
	e.state = newState
	m.logger.Info("model state transition", "model", name, "from", old, "to", newState)

	if newState == Running {
		e.queue.removeExpired(time.Now())
	}
}

// GetState returns the current state of name, or Stopped if it has never
// been seen.
func (m *Manager) GetState(name string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return Stopped
	}
	return e.state
}

// ShouldQueue reports whether inbound requests for name must be queued
// rather than forwarded, i.e. the model is Starting or Reloading.
func (m *Manager) ShouldQueue(name string) bool {
	return m.GetState(name).ShouldQueue()
}

// Enqueue admits a new pending request for name. Returns false if the
// queue is already at capacity (back-pressure); the caller should respond
// 503. A fresh requestID is generated on every call.
func (m *Manager) Enqueue(name, clientID, endpoint string) (requestID string, accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.ensureLocked(name, 0)

	requestID = uuid.NewString()
	req := Request{
		RequestID:   requestID,
		ClientID:    clientID,
		Endpoint:    endpoint,
		EnqueueTime: time.Now(),
		Timeout:     DefaultRequestTimeout,
	}
	if !e.queue.push(req) {
		return requestID, false
	}
	return requestID, true
}

// QueueSize returns the current pending-request count for name.
func (m *Manager) QueueSize(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return 0
	}
	return e.queue.size()
}

// Track records the outcome of one completed (or failed) forward: updates
// totals, averages, peak depth, requests-per-minute, and the history ring.
func (m *Manager) Track(name string, waitTime, processingTime time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.ensureLocked(name, 0)
	e.metrics.record(time.Now(), e.queue.size(), waitTime, processingTime, success)
}

// Stats returns the merged metrics+queue+state view for name.
func (m *Manager) Stats(name string) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return Stats{Name: name, State: Stopped}
	}
	return Stats{
		Name:               name,
		State:              e.state,
		QueueSize:          e.queue.size(),
		TotalRequests:      e.metrics.totalRequests,
		SuccessfulRequests: e.metrics.successfulRequests,
		FailedRequests:     e.metrics.failedRequests,
		AvgWaitTime:        e.metrics.avgWaitTime(),
		AvgProcessingTime:  e.metrics.avgProcessingTime(),
		PeakDepth:          e.metrics.peakDepth,
		RequestsPerMinute:  e.metrics.requestsPerMinute(time.Now()),
		LastActivity:       e.metrics.lastActivity,
	}
}

// AllStats returns Stats for every model the Manager has ever seen.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.entries))
	for name := range m.entries {
		e := m.entries[name]
		out[name] = Stats{
			Name:               name,
			State:              e.state,
			QueueSize:          e.queue.size(),
			TotalRequests:      e.metrics.totalRequests,
			SuccessfulRequests: e.metrics.successfulRequests,
			FailedRequests:     e.metrics.failedRequests,
			AvgWaitTime:        e.metrics.avgWaitTime(),
			AvgProcessingTime:  e.metrics.avgProcessingTime(),
			PeakDepth:          e.metrics.peakDepth,
			RequestsPerMinute:  e.metrics.requestsPerMinute(time.Now()),
			LastActivity:       e.metrics.lastActivity,
		}
	}
	return out
}

// History returns up to limit most-recent history entries for name, oldest
// first. limit <= 0 means "all".
func (m *Manager) History(name string, limit int) []HistoricalEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return nil
	}
	return e.metrics.recentHistory(limit)
}

// Clear drains the FIFO and pending index for name. Used on reload and
// shutdown.
func (m *Manager) Clear(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return
	}
	e.queue.clear()
}

// ResetMetrics zeros counters and history for name.
func (m *Manager) ResetMetrics(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return
	}
	e.metrics.reset()
}
