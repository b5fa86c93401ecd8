package scheduler

import (
	"reflect"

	"github.com/fluffypony/llm-proxifier/pkg/config"
)

// ConfigDiff summarizes what changed between the previously loaded
// configuration and one just applied via ApplyConfigs.
type ConfigDiff struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// ApplyConfigs replaces the configured model set with configs, computing
// and returning what changed. It never restarts a running instance on a
// Modified entry — operators pick up a changed definition explicitly via
// Reload. Models present in Removed ARE stopped immediately, since a
// config no longer naming them leaves nothing to manage them going
// forward; leaving their process running would orphan it outside the
// scheduler's bookkeeping.
func (m *Manager) ApplyConfigs(configs map[string]config.ModelConfig) (ConfigDiff, error) {
	next := make(map[string]config.ModelConfig, len(configs))
	for name, c := range configs {
		c.Name = name
		c.ApplyDefaults()
		if err := c.Validate(); err != nil {
			return ConfigDiff{}, err
		}
		next[name] = c
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var diff ConfigDiff
	for name, c := range next {
		old, existed := m.configs[name]
		if !existed {
			diff.Added = append(diff.Added, name)
			continue
		}
		if !reflect.DeepEqual(old, c) {
			diff.Modified = append(diff.Modified, name)
		}
	}
	for name := range m.configs {
		if _, stillPresent := next[name]; !stillPresent {
			diff.Removed = append(diff.Removed, name)
		}
	}

	for _, name := range diff.Removed {
		if inst, running := m.models[name]; running {
			inst.Stop(m.queueMgr)
			delete(m.models, name)
		}
	}

	m.configs = next
	return diff, nil
}
