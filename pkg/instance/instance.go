// Package instance implements the Model Instance: one running (or
// starting/stopping) llama-server child process, its readiness, and the
// small set of operations the scheduler drives it through. An Instance is
// exclusively owned by the Model Manager; no other component may mutate it.
package instance

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/config"
	"github.com/fluffypony/llm-proxifier/pkg/procutil"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
)

const (
	// readyTimeout bounds how long Start waits for the health probe.
	readyTimeout = 60 * time.Second
	// stopTimeout bounds the graceful phase of Stop.
	stopTimeout = 5 * time.Second
	// healthCheckTimeout bounds a single HealthCheck call.
	healthCheckTimeout = 5 * time.Second
)

// Instance is one model's child process plus the bookkeeping the
// scheduler needs to serve and evict it.
type Instance struct {
	Config config.ModelConfig
	logger *slog.Logger

	cmd     *exec.Cmd
	exited  chan struct{} // closed once cmd.Wait() returns

	mu           sync.RWMutex
	isReady      bool
	startTime    time.Time
	lastAccessed time.Time
	requestCount int64 // accessed via atomic
}

// New creates an Instance for cfg. The process is not launched until
// Start is called.
func New(cfg config.ModelConfig, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instance{
		Config: cfg,
		logger: logger.With("model", cfg.Name),
	}
}

// BaseURL is the instance's loopback origin.
func (i *Instance) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", i.Config.Port)
}

// HealthURL is BaseURL + "/health".
func (i *Instance) HealthURL() string {
	return i.BaseURL() + "/health"
}

// IsReady reports whether the health probe has succeeded and the instance
// has not since been stopped.
func (i *Instance) IsReady() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.isReady
}

// RequestCount returns the monotonic counter of successful forwards.
func (i *Instance) RequestCount() int64 {
	return atomic.LoadInt64(&i.requestCount)
}

// Touch marks the instance as just-accessed and bumps the request
// counter. Called by the Model Manager immediately before a successful
// forward.
func (i *Instance) Touch() {
	i.mu.Lock()
	i.lastAccessed = time.Now()
	i.mu.Unlock()
	atomic.AddInt64(&i.requestCount, 1)
}

// LastAccessed returns the last Touch time, or the zero time if never
// touched.
func (i *Instance) LastAccessed() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastAccessed
}

// Uptime returns how long the instance has been running, or false if it
// has not started.
func (i *Instance) Uptime() (time.Duration, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.startTime.IsZero() {
		return 0, false
	}
	return time.Since(i.startTime), true
}

// MemoryMB samples the child process's resident set size.
func (i *Instance) MemoryMB() (float64, bool) {
	pid, ok := i.pid()
	if !ok {
		return 0, false
	}
	return procutil.RSSMB(pid)
}

// CPUPercent samples the child process's CPU utilization.
func (i *Instance) CPUPercent() (float64, bool) {
	pid, ok := i.pid()
	if !ok {
		return 0, false
	}
	return procutil.CPUPercent(pid)
}

func (i *Instance) pid() (int32, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.cmd == nil || i.cmd.Process == nil {
		return 0, false
	}
	return int32(i.cmd.Process.Pid), true
}

// alive reports whether the child process handle exists and has not yet
// exited.
func (i *Instance) alive() bool {
	i.mu.RLock()
	cmd, exited := i.cmd, i.exited
	i.mu.RUnlock()
	if cmd == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
		return true
	}
}

// Start brings the instance up: transitions the queue state to Starting,
// launches the child if one is not already alive, waits for its health
// probe, and transitions to Running on success (or Stopped on failure).
// See §4.B for the exact step sequence this follows.
func (i *Instance) Start(ctx context.Context, queueMgr *queue.Manager) bool {
	queueMgr.SetState(i.Config.Name, queue.Starting)

	if i.alive() {
		queueMgr.SetState(i.Config.Name, queue.Running)
		return true
	}

	if procutil.PortListening("127.0.0.1", i.Config.Port) {
		i.logger.Warn("port already occupied by a foreign process", "port", i.Config.Port)
		queueMgr.SetState(i.Config.Name, queue.Stopped)
		return false
	}

	argv := procutil.BuildCommand(i.Config)
	cmd := exec.CommandContext(context.Background(), argv[0], argv[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		i.logger.Error("failed to launch child process", "error", err)
		queueMgr.SetState(i.Config.Name, queue.Stopped)
		return false
	}

	exited := make(chan struct{})
	i.mu.Lock()
	i.cmd = cmd
	i.exited = exited
	i.startTime = time.Now()
	i.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	if procutil.WaitForReady(ctx, i.BaseURL(), readyTimeout) && i.alive() {
		i.mu.Lock()
		i.isReady = true
		i.lastAccessed = time.Now()
		i.mu.Unlock()
		queueMgr.SetState(i.Config.Name, queue.Running)
		return true
	}

	i.Stop(queueMgr)
	queueMgr.SetState(i.Config.Name, queue.Stopped)
	return false
}

// Stop transitions the instance to Stopping, gracefully terminates the
// child (5s before escalating to SIGKILL), and transitions to Stopped.
// Idempotent: calling Stop with no process returns true immediately.
func (i *Instance) Stop(queueMgr *queue.Manager) bool {
	queueMgr.SetState(i.Config.Name, queue.Stopping)

	i.mu.Lock()
	cmd, exited := i.cmd, i.exited
	i.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		queueMgr.SetState(i.Config.Name, queue.Stopped)
		return true
	}

	graceful := procutil.GracefulStop(cmd.Process, exited, stopTimeout)
	if !graceful {
		i.logger.Warn("child did not exit gracefully, sent SIGKILL")
	}

	i.mu.Lock()
	i.cmd = nil
	i.isReady = false
	i.mu.Unlock()

	queueMgr.SetState(i.Config.Name, queue.Stopped)
	return true
}

// HealthCheck performs a single 5s GET /health and updates IsReady to
// match. Returns false immediately if there is no process or it has
// already exited.
func (i *Instance) HealthCheck() bool {
	if !i.alive() {
		i.mu.Lock()
		i.isReady = false
		i.mu.Unlock()
		return false
	}

	ok := procutil.CheckHealth(context.Background(), i.BaseURL(), healthCheckTimeout)

	i.mu.Lock()
	i.isReady = ok
	i.mu.Unlock()
	return ok
}
