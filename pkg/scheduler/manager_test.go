package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/fluffypony/llm-proxifier/pkg/config"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
)

func testConfigs() map[string]config.ModelConfig {
	return map[string]config.ModelConfig{
		"low": {
			Name: "low", Port: 19001, ModelPath: "/models/low.gguf",
			ContextLength: 2048, Priority: 1, ResourceGroup: "default",
		},
		"high": {
			Name: "high", Port: 19002, ModelPath: "/models/high.gguf",
			ContextLength: 2048, Priority: 9, ResourceGroup: "default",
		},
		"mid-a": {
			Name: "mid-a", Port: 19003, ModelPath: "/models/mid-a.gguf",
			ContextLength: 2048, Priority: 5, ResourceGroup: "other",
		},
		"mid-b": {
			Name: "mid-b", Port: 19004, ModelPath: "/models/mid-b.gguf",
			ContextLength: 2048, Priority: 5, ResourceGroup: "other", Preload: true,
		},
	}
}

func newTestManager() *Manager {
	qm := queue.NewManager(nil)
	m := New(qm, time.Minute, 4, nil)
	m.LoadConfigs(testConfigs())
	return m
}

func TestGetOrStartUnconfiguredModel(t *testing.T) {
	m := newTestManager()
	inst, ok := m.GetOrStart(context.Background(), "nonexistent")
	if ok || inst != nil {
		t.Errorf("expected (nil, false) for unconfigured model, got (%v, %v)", inst, ok)
	}
}

func TestModelsByPriorityOrder(t *testing.T) {
	m := newTestManager()
	ordered := m.GetModelsByPriority()
	if len(ordered) != 4 {
		t.Fatalf("expected 4 configs, got %d", len(ordered))
	}
	if ordered[0].Name != "high" {
		t.Errorf("expected highest priority first, got %q", ordered[0].Name)
	}
	// mid-a and mid-b tie on priority 5; ascending name breaks the tie.
	if ordered[1].Name != "mid-a" || ordered[2].Name != "mid-b" {
		t.Errorf("expected tie broken by ascending name, got %q then %q", ordered[1].Name, ordered[2].Name)
	}
	if ordered[3].Name != "low" {
		t.Errorf("expected lowest priority last, got %q", ordered[3].Name)
	}
}

func TestStopUnknownModelIsIdempotent(t *testing.T) {
	m := newTestManager()
	if !m.Stop("never-started") {
		t.Error("expected Stop on a never-started model to return true")
	}
}

func TestGetModelStatusUnconfigured(t *testing.T) {
	m := newTestManager()
	_, ok := m.GetModelStatus("nonexistent")
	if ok {
		t.Error("expected GetModelStatus to report false for an unconfigured model")
	}
}

func TestGetModelStatusReflectsConfig(t *testing.T) {
	m := newTestManager()
	st, ok := m.GetModelStatus("high")
	if !ok {
		t.Fatal("expected GetModelStatus to find a configured model")
	}
	if st.Priority != 9 || st.Port != 19002 || st.ResourceGroup != "default" {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Status != queue.Stopped {
		t.Errorf("expected a never-started model to report Stopped, got %v", st.Status)
	}
}

func TestGetResourceGroupStatusAggregates(t *testing.T) {
	m := newTestManager()
	groups := m.GetResourceGroupStatus("")
	other, ok := groups["other"]
	if !ok {
		t.Fatal("expected an 'other' group entry")
	}
	if other.Total != 2 {
		t.Errorf("expected 2 models in group 'other', got %d", other.Total)
	}
	if other.Running != 0 {
		t.Errorf("expected 0 running before any start, got %d", other.Running)
	}
}

func TestReloadUnconfiguredModelWithoutNewConfig(t *testing.T) {
	m := newTestManager()
	result := m.Reload(context.Background(), "nonexistent", nil)
	if result.Success {
		t.Error("expected Reload of an unconfigured model with no replacement to fail")
	}
}

func TestReloadStoppedModelSucceedsWithoutRestart(t *testing.T) {
	m := newTestManager()
	result := m.Reload(context.Background(), "low", nil)
	if !result.Success {
		t.Errorf("expected Reload of a stopped model to succeed, got message %q", result.Message)
	}
	if got := m.queueMgr.GetState("low"); got != queue.Stopped {
		t.Errorf("expected state Stopped after reloading a never-started model, got %v", got)
	}
}

func TestReloadAddsNewConfig(t *testing.T) {
	m := newTestManager()
	newCfg := config.ModelConfig{
		Port: 19099, ModelPath: "/models/fresh.gguf", ContextLength: 4096, Priority: 3,
	}
	result := m.Reload(context.Background(), "fresh", &newCfg)
	if !result.Success {
		t.Fatalf("expected adding a new model via Reload to succeed, got %q", result.Message)
	}
	st, ok := m.GetModelStatus("fresh")
	if !ok {
		t.Fatal("expected the new model to be configured after Reload")
	}
	if st.Port != 19099 || st.ResourceGroup != config.DefaultResourceGroup {
		t.Errorf("unexpected status for freshly added model: %+v", st)
	}
}

func TestStopResourceGroupWithNothingRunning(t *testing.T) {
	m := newTestManager()
	// StopResourceGroup only iterates running instances, so a group whose
	// models (including the preload one, mid-b) were never started yields
	// an empty result.
	result := m.StopResourceGroup("other")
	if len(result) != 0 {
		t.Errorf("expected no entries since nothing in 'other' is running, got %v", result)
	}
}

func TestShutdownIsSafeWithNothingRunning(t *testing.T) {
	m := newTestManager()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)
}
