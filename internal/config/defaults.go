package config

import "github.com/carbonfact/lea/pkg/core"

// DefaultScriptsDir is used when a ProjectConfig doesn't set scripts_dir.
const DefaultScriptsDir = "scripts"

// DefaultStatePath is used when a ProjectConfig doesn't set state_path.
const DefaultStatePath = ".lea/state.db"

// ApplyDefaults fills in a ProjectConfig's unset fields.
func ApplyDefaults(c *core.ProjectConfig) {
	if c == nil {
		return
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = DefaultScriptsDir
	}
	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
}

// ApplyTargetDefaults fills in a TargetConfig's unset fields based on its type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}
