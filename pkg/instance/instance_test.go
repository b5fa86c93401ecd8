package instance

import (
	"testing"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/config"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
)

func testConfig() config.ModelConfig {
	return config.ModelConfig{
		Name:          "m1",
		Port:          11001,
		ModelPath:     "/models/a.gguf",
		ContextLength: 2048,
		Priority:      5,
		ResourceGroup: "default",
	}
}

func TestBaseURLAndHealthURL(t *testing.T) {
	inst := New(testConfig(), nil)
	if inst.BaseURL() != "http://127.0.0.1:11001" {
		t.Errorf("BaseURL = %q", inst.BaseURL())
	}
	if inst.HealthURL() != "http://127.0.0.1:11001/health" {
		t.Errorf("HealthURL = %q", inst.HealthURL())
	}
}

func TestTouchIncrementsCounters(t *testing.T) {
	inst := New(testConfig(), nil)
	if inst.RequestCount() != 0 {
		t.Fatalf("expected initial request count 0, got %d", inst.RequestCount())
	}

	inst.Touch()
	inst.Touch()

	if inst.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", inst.RequestCount())
	}
	if time.Since(inst.LastAccessed()) > time.Second {
		t.Errorf("LastAccessed not updated recently")
	}
}

func TestUptimeBeforeStart(t *testing.T) {
	inst := New(testConfig(), nil)
	if _, ok := inst.Uptime(); ok {
		t.Error("expected Uptime to report false before Start")
	}
}

func TestStopWithNoProcessIsIdempotent(t *testing.T) {
	inst := New(testConfig(), nil)
	qm := queue.NewManager(nil)

	if !inst.Stop(qm) {
		t.Error("expected Stop on never-started instance to return true")
	}
	if !inst.Stop(qm) {
		t.Error("expected second Stop to also return true (idempotent)")
	}
	if qm.GetState("m1") != queue.Stopped {
		t.Errorf("expected state Stopped after Stop, got %v", qm.GetState("m1"))
	}
}

func TestHealthCheckWithNoProcess(t *testing.T) {
	inst := New(testConfig(), nil)
	if inst.HealthCheck() {
		t.Error("expected HealthCheck false with no process")
	}
	if inst.IsReady() {
		t.Error("expected IsReady false with no process")
	}
}

func TestMemoryAndCPUWithNoProcess(t *testing.T) {
	inst := New(testConfig(), nil)
	if _, ok := inst.MemoryMB(); ok {
		t.Error("expected MemoryMB false with no process")
	}
	if _, ok := inst.CPUPercent(); ok {
		t.Error("expected CPUPercent false with no process")
	}
}
