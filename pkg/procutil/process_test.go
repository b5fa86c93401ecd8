package procutil

import (
	"testing"

	"github.com/fluffypony/llm-proxifier/pkg/config"
)

func TestBuildCommandOrder(t *testing.T) {
	cfg := config.ModelConfig{
		Name:           "m1",
		Port:           11001,
		ModelPath:      "/models/a.gguf",
		ContextLength:  4096,
		GPULayers:      -1,
		ChatFormat:     "chatml",
		AdditionalArgs: []string{"--verbose", "--seed", "42"},
	}

	got := BuildCommand(cfg)
	want := []string{
		"llama-server",
		"--model", "/models/a.gguf",
		"--port", "11001",
		"--ctx-size", "4096",
		"--n-gpu-layers", "-1",
		"--chat-template", "chatml",
		"--host", "127.0.0.1",
		"--verbose", "--seed", "42",
	}

	if len(got) != len(want) {
		t.Fatalf("argv length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBuildCommandNoAdditionalArgs(t *testing.T) {
	cfg := config.ModelConfig{
		ModelPath:     "/models/a.gguf",
		Port:          11001,
		ContextLength: 2048,
		ChatFormat:    "chatml",
	}

	got := BuildCommand(cfg)
	if got[len(got)-1] == "" {
		t.Error("unexpected trailing empty argument")
	}
	if got[len(got)-1] != "127.0.0.1" {
		t.Errorf("expected argv to end with --host 127.0.0.1 when no additional args, got %v", got)
	}
}
