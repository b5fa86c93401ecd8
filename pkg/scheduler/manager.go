// Package scheduler implements the Model Manager: the central orchestrator
// that coordinates start/stop across Model Instances under a single
// coordination lock, enforces the concurrency cap, priority, and resource
// groups, and runs the idle-eviction loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/config"
	"github.com/fluffypony/llm-proxifier/pkg/instance"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
)

const (
	// DefaultIdleTimeout is applied when the caller does not configure one.
	DefaultIdleTimeout = 5 * time.Minute
	// DefaultMaxConcurrent is applied when the caller does not configure one.
	DefaultMaxConcurrent = 4

	evictionInterval = 30 * time.Second
	shutdownWait      = 10 * time.Second
)

// Manager coordinates every Model Instance. Exactly one goroutine at a
// time may be inside a start/stop/reload/eviction-sweep critical section;
// Manager.mu enforces that. Forwarding, once an instance is returned, runs
// outside this lock entirely.
type Manager struct {
	logger   *slog.Logger
	queueMgr *queue.Manager

	idleTimeout   time.Duration
	maxConcurrent int

	mu      sync.Mutex
	configs map[string]config.ModelConfig
	models  map[string]*instance.Instance

	evictCancel context.CancelFunc
	evictDone   chan struct{}
}

// New creates a Manager bound to queueMgr. idleTimeout and maxConcurrent
// fall back to their documented defaults when zero.
func New(queueMgr *queue.Manager, idleTimeout time.Duration, maxConcurrent int, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Manager{
		logger:        logger,
		queueMgr:      queueMgr,
		idleTimeout:   idleTimeout,
		maxConcurrent: maxConcurrent,
		configs:       make(map[string]config.ModelConfig),
		models:        make(map[string]*instance.Instance),
	}
}

// LoadConfigs atomically replaces the configs map. Running instances are
// left untouched; a config change only takes effect for a model the next
// time it is (re)started.
func (m *Manager) LoadConfigs(configs map[string]config.ModelConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make(map[string]config.ModelConfig, len(configs))
	for name, c := range configs {
		next[name] = c
	}
	m.configs = next
}

// GetOrStart returns a ready instance for name, starting it on demand if
// necessary. Returns (nil, false) when the model is unconfigured, the
// concurrency cap is hit, or start fails — see §4.D step sequence.
func (m *Manager) GetOrStart(ctx context.Context, name string) (*instance.Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrStartLocked(ctx, name)
}

// getOrStartLocked is GetOrStart's body, factored out so Reload can run a
// stop-then-restart as one unbroken critical section instead of releasing
// m.mu and calling back into GetOrStart — which would let a concurrent
// GetOrStart or Reload for the same name race in and start a second
// instance against the same port. Caller must hold m.mu.
func (m *Manager) getOrStartLocked(ctx context.Context, name string) (*instance.Instance, bool) {
	cfg, configured := m.configs[name]
	if !configured {
		return nil, false
	}

	if inst, exists := m.models[name]; exists {
		if inst.IsReady() && inst.HealthCheck() {
			inst.Touch()
			return inst, true
		}
		inst.Stop(m.queueMgr)
		delete(m.models, name)
	}

	active := 0
	for _, inst := range m.models {
		if inst.IsReady() {
			active++
		}
	}
	if active >= m.maxConcurrent {
		m.logger.Warn("concurrent-model cap reached", "model", name, "max_concurrent", m.maxConcurrent)
		return nil, false
	}

	inst := instance.New(cfg, m.logger)
	if !inst.Start(ctx, m.queueMgr) {
		return nil, false
	}

	m.models[name] = inst
	return inst, true
}

// Stop stops and removes name's instance. Absent name is a no-op success,
// matching §4.D's idempotence requirement.
func (m *Manager) Stop(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(name)
}

func (m *Manager) stopLocked(name string) bool {
	inst, exists := m.models[name]
	if !exists {
		return true
	}
	ok := inst.Stop(m.queueMgr)
	delete(m.models, name)
	return ok
}

// StopAll stops every non-preload running instance. Preload instances are
// skipped with a logged warning and recorded false.
func (m *Manager) StopAll() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]bool, len(m.models))
	for name, inst := range m.models {
		if inst.Config.Preload {
			m.logger.Warn("skipping stop of preloaded model", "model", name)
			result[name] = false
			continue
		}
		result[name] = m.stopLocked(name)
	}
	return result
}

// StartAll starts every configured model, in descending-priority order
// (ties broken by ascending name).
func (m *Manager) StartAll(ctx context.Context) map[string]bool {
	return m.startMany(ctx, m.modelsByPriorityLocked)
}

// RestartAll stops then starts every configured model, priority-ordered.
func (m *Manager) RestartAll(ctx context.Context) map[string]bool {
	m.StopAll()
	return m.StartAll(ctx)
}

// StartAllAuto starts every model whose AutoStart flag is set, in
// descending-priority order. Called once at boot.
func (m *Manager) StartAllAuto(ctx context.Context) map[string]bool {
	return m.startMany(ctx, func() []config.ModelConfig {
		all := m.modelsByPriorityLocked()
		filtered := all[:0]
		for _, c := range all {
			if c.AutoStart {
				filtered = append(filtered, c)
			}
		}
		return filtered
	})
}

// Preload ensures every preload=true config has a running instance.
func (m *Manager) Preload(ctx context.Context) map[string]bool {
	return m.startMany(ctx, func() []config.ModelConfig {
		all := m.modelsByPriorityLocked()
		filtered := all[:0]
		for _, c := range all {
			if c.Preload {
				filtered = append(filtered, c)
			}
		}
		return filtered
	})
}

// startMany calls GetOrStart for each config returned by selector, one at
// a time (GetOrStart already serializes via m.mu, so selector must be
// called without the lock held).
func (m *Manager) startMany(ctx context.Context, selector func() []config.ModelConfig) map[string]bool {
	m.mu.Lock()
	targets := selector()
	m.mu.Unlock()

	result := make(map[string]bool, len(targets))
	for _, c := range targets {
		_, ok := m.GetOrStart(ctx, c.Name)
		result[c.Name] = ok
	}
	return result
}

// modelsByPriorityLocked returns configs sorted descending by priority,
// ties broken by ascending name. Caller must hold m.mu.
func (m *Manager) modelsByPriorityLocked() []config.ModelConfig {
	out := make([]config.ModelConfig, 0, len(m.configs))
	for _, c := range m.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// GetModelsByPriority returns every configured model sorted descending by
// priority, ties broken by ascending name — an explicit determinism
// decision this spec makes (the source was nondeterministic on ties).
func (m *Manager) GetModelsByPriority() []config.ModelConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelsByPriorityLocked()
}

// StartResourceGroup starts every config in group, priority-ordered.
func (m *Manager) StartResourceGroup(ctx context.Context, group string) map[string]bool {
	return m.startMany(ctx, func() []config.ModelConfig {
		all := m.modelsByPriorityLocked()
		filtered := all[:0]
		for _, c := range all {
			if c.ResourceGroup == group {
				filtered = append(filtered, c)
			}
		}
		return filtered
	})
}

// StopResourceGroup stops every running instance in group. Preload
// instances are skipped, matching StopAll's guard.
func (m *Manager) StopResourceGroup(group string) map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]bool)
	for name, inst := range m.models {
		if inst.Config.ResourceGroup != group {
			continue
		}
		if inst.Config.Preload {
			m.logger.Warn("skipping stop of preloaded model", "model", name, "group", group)
			result[name] = false
			continue
		}
		result[name] = m.stopLocked(name)
	}
	return result
}

// GetResourceGroupStatus aggregates running/total counts per resource
// group. If group is non-empty, only that group is returned.
func (m *Manager) GetResourceGroupStatus(group string) map[string]GroupStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups := make(map[string]*GroupStatus)
	for _, c := range m.configs {
		if group != "" && c.ResourceGroup != group {
			continue
		}
		g, ok := groups[c.ResourceGroup]
		if !ok {
			g = &GroupStatus{Group: c.ResourceGroup}
			groups[c.ResourceGroup] = g
		}
		g.Total++
		if inst, running := m.models[c.Name]; running && inst.IsReady() {
			g.Running++
		}
	}

	out := make(map[string]GroupStatus, len(groups))
	for name, g := range groups {
		out[name] = *g
	}
	return out
}

// Reload is the only operation that passes through the Reloading state.
// It stops the current instance (if any), optionally replaces the config,
// and — if the model was running before — starts a fresh instance.
func (m *Manager) Reload(ctx context.Context, name string, newConfig *config.ModelConfig) ReloadResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, configured := m.configs[name]; !configured && newConfig == nil {
		return ReloadResult{Success: false, Message: fmt.Sprintf("model %q is not configured", name)}
	}

	m.queueMgr.SetState(name, queue.Reloading)
	m.queueMgr.Clear(name)

	wasRunning := false
	if inst, exists := m.models[name]; exists {
		wasRunning = inst.IsReady()
		inst.Stop(m.queueMgr)
		delete(m.models, name)
	}

	if newConfig != nil {
		cfg := *newConfig
		cfg.Name = name
		cfg.ApplyDefaults()
		m.configs[name] = cfg
	}

	if !wasRunning {
		m.queueMgr.SetState(name, queue.Stopped)
		return ReloadResult{Success: true, Message: fmt.Sprintf("model %q reloaded (stopped)", name)}
	}

	// Restart while still holding m.mu — calling the exported GetOrStart here
	// would release and reacquire the lock, leaving a window where a
	// concurrent GetOrStart or Reload for name could start a second instance.
	if _, ok := m.getOrStartLocked(ctx, name); !ok {
		return ReloadResult{Success: false, Message: fmt.Sprintf("model %q failed to restart after reload", name)}
	}
	return ReloadResult{Success: true, Message: fmt.Sprintf("model %q reloaded (running)", name)}
}

// GetModelStatus returns the stable status shape for name.
func (m *Manager) GetModelStatus(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, configured := m.configs[name]
	if !configured {
		return Status{}, false
	}
	return m.statusLocked(name, cfg), true
}

// GetAllModelStatus returns the status shape for every configured model.
func (m *Manager) GetAllModelStatus() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.configs))
	for name, cfg := range m.configs {
		out[name] = m.statusLocked(name, cfg)
	}
	return out
}

func (m *Manager) statusLocked(name string, cfg config.ModelConfig) Status {
	st := Status{
		Status:        m.queueMgr.GetState(name),
		Port:          cfg.Port,
		Priority:      cfg.Priority,
		ResourceGroup: cfg.ResourceGroup,
		Preload:       cfg.Preload,
		AutoStart:     cfg.AutoStart,
	}

	inst, running := m.models[name]
	if !running {
		return st
	}

	st.RequestCount = inst.RequestCount()
	if t := inst.LastAccessed(); !t.IsZero() {
		unix := t.Unix()
		st.LastAccessed = &unix
	}
	if up, ok := inst.Uptime(); ok {
		secs := up.Seconds()
		st.UptimeSeconds = &secs
	}
	if mb, ok := inst.MemoryMB(); ok {
		st.MemoryUsageMB = &mb
	}
	if cpu, ok := inst.CPUPercent(); ok {
		st.CPUUsagePercent = &cpu
	}
	return st
}

// StartCleanupTask launches the idle-eviction loop: every 30 seconds,
// under the manager lock, instances idle beyond idleTimeout (excluding
// preloaded ones) are stopped and removed.
func (m *Manager) StartCleanupTask(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.evictCancel = cancel
	m.evictDone = make(chan struct{})

	go func() {
		defer close(m.evictDone)
		ticker := time.NewTicker(evictionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.evictIdle()
			}
		}
	}()
}

// StopCleanupTask cancels the idle-eviction loop and waits for it to exit.
func (m *Manager) StopCleanupTask() {
	if m.evictCancel != nil {
		m.evictCancel()
		<-m.evictDone
	}
}

func (m *Manager) evictIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for name, inst := range m.models {
		if inst.Config.Preload {
			continue
		}
		last := inst.LastAccessed()
		if last.IsZero() {
			continue
		}
		if now.Sub(last) > m.idleTimeout {
			m.logger.Info("evicting idle model", "model", name, "idle_for", now.Sub(last))
			inst.Stop(m.queueMgr)
			delete(m.models, name)
		}
	}
}

// Shutdown cancels the eviction loop and stops every running instance,
// bounded by shutdownWait.
func (m *Manager) Shutdown(ctx context.Context) {
	m.StopCleanupTask()

	m.mu.Lock()
	defer m.mu.Unlock()

	var wg sync.WaitGroup
	for name, inst := range m.models {
		wg.Add(1)
		go func(name string, inst *instance.Instance) {
			defer wg.Done()
			inst.Stop(m.queueMgr)
		}(name, inst)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownWait):
		m.logger.Warn("shutdown timed out waiting for instances to stop")
	case <-ctx.Done():
	}

	m.models = make(map[string]*instance.Instance)
}
