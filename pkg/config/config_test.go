package config

import "testing"

func TestModelConfigApplyDefaults(t *testing.T) {
	m := ModelConfig{Name: "m1"}
	m.ApplyDefaults()

	if m.ResourceGroup != DefaultResourceGroup {
		t.Errorf("expected resource group %q, got %q", DefaultResourceGroup, m.ResourceGroup)
	}
	if m.Priority != 5 {
		t.Errorf("expected default priority 5, got %d", m.Priority)
	}
}

func TestModelConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ModelConfig
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     ModelConfig{Name: "m1", Port: 11001, ModelPath: "/t/a.gguf", ContextLength: 2048, Priority: 5},
			wantErr: false,
		},
		{
			name:    "missing name",
			cfg:     ModelConfig{Port: 11001, ModelPath: "/t/a.gguf", ContextLength: 2048, Priority: 5},
			wantErr: true,
		},
		{
			name:    "port out of range",
			cfg:     ModelConfig{Name: "m1", Port: 80, ModelPath: "/t/a.gguf", ContextLength: 2048, Priority: 5},
			wantErr: true,
		},
		{
			name:    "missing model path",
			cfg:     ModelConfig{Name: "m1", Port: 11001, ContextLength: 2048, Priority: 5},
			wantErr: true,
		},
		{
			name:    "priority out of range",
			cfg:     ModelConfig{Name: "m1", Port: 11001, ModelPath: "/t/a.gguf", ContextLength: 2048, Priority: 11},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateDuplicatePorts(t *testing.T) {
	cfg := &Config{
		Models: map[string]ModelConfig{
			"m1": {Name: "m1", Port: 11001, ModelPath: "/t/a.gguf", ContextLength: 2048, Priority: 5},
			"m2": {Name: "m2", Port: 11001, ModelPath: "/t/b.gguf", ContextLength: 2048, Priority: 5},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for duplicate ports, got nil")
	}
}

func TestConfigValidateKeyMismatch(t *testing.T) {
	cfg := &Config{
		Models: map[string]ModelConfig{
			"m1": {Name: "wrong-name", Port: 11001, ModelPath: "/t/a.gguf", ContextLength: 2048, Priority: 5},
		},
	}

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for key/name mismatch, got nil")
	}
}
