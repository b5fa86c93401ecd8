package scheduler

import (
	"testing"

	"github.com/fluffypony/llm-proxifier/pkg/config"
)

func TestApplyConfigsDetectsAddedRemovedModified(t *testing.T) {
	m := newTestManager()

	next := testConfigs()
	delete(next, "low")
	modified := next["high"]
	modified.ContextLength = 8192
	next["high"] = modified
	next["brand-new"] = config.ModelConfig{
		Name: "brand-new", Port: 19010, ModelPath: "/models/new.gguf",
		ContextLength: 2048, Priority: 4,
	}

	diff, err := m.ApplyConfigs(next)
	if err != nil {
		t.Fatalf("ApplyConfigs: %v", err)
	}

	if len(diff.Added) != 1 || diff.Added[0] != "brand-new" {
		t.Errorf("expected Added = [brand-new], got %v", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0] != "low" {
		t.Errorf("expected Removed = [low], got %v", diff.Removed)
	}
	if len(diff.Modified) != 1 || diff.Modified[0] != "high" {
		t.Errorf("expected Modified = [high], got %v", diff.Modified)
	}

	if _, ok := m.GetModelStatus("low"); ok {
		t.Error("expected 'low' to no longer be configured after removal")
	}
	if _, ok := m.GetModelStatus("brand-new"); !ok {
		t.Error("expected 'brand-new' to be configured after ApplyConfigs")
	}
}

func TestApplyConfigsRejectsInvalidEntry(t *testing.T) {
	m := newTestManager()
	bad := testConfigs()
	bad["broken"] = config.ModelConfig{Name: "broken"}

	if _, err := m.ApplyConfigs(bad); err == nil {
		t.Error("expected ApplyConfigs to reject a config missing model_path/port")
	}

	// The rejected apply must not have partially replaced the config set.
	if _, ok := m.GetModelStatus("high"); !ok {
		t.Error("expected previous configuration to remain in effect after a rejected ApplyConfigs")
	}
}

func TestApplyConfigsNoopWhenUnchanged(t *testing.T) {
	m := newTestManager()
	diff, err := m.ApplyConfigs(testConfigs())
	if err != nil {
		t.Fatalf("ApplyConfigs: %v", err)
	}
	if len(diff.Added) != 0 || len(diff.Removed) != 0 || len(diff.Modified) != 0 {
		t.Errorf("expected an empty diff re-applying the same configs, got %+v", diff)
	}
}
