// Package config loads and validates the pipeline run configuration. A config
// is validated once at ingress; the rest of the system treats it as an
// already-valid value and never re-checks it.
package config

// Config is the top-level structure parsed from bmadflow YAML.
type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline defines the run: phases in order, retry and checkpoint settings,
// and per-role agent configuration.
type Pipeline struct {
	Name               string                `yaml:"name"`
	Mode               string                `yaml:"mode"`
	MaxRetries         int                   `yaml:"max_retries"`
	CheckpointInterval int                   `yaml:"checkpoint_interval"`
	Concurrency        int                   `yaml:"concurrency"`
	TaskTimeout        string                `yaml:"task_timeout"`
	ShutdownGrace      string                `yaml:"shutdown_grace"`
	Phases             []Phase               `yaml:"phases"`
	Roles              map[string]RoleConfig `yaml:"roles"`
}

// Phase defines one ordered stage of the pipeline.
type Phase struct {
	Name     string         `yaml:"name"`
	Enabled  *bool          `yaml:"enabled"` // nil means enabled
	Parallel bool           `yaml:"parallel"`
	Tasks    []TaskTemplate `yaml:"tasks"`
}

// IsEnabled returns whether the phase should be dispatched.
func (p Phase) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// TaskTemplate describes one unit of work within a phase. The description may
// reference template variables like {{objective}}.
type TaskTemplate struct {
	Description string `yaml:"description"`
	Role        string `yaml:"role"`
}

// RoleConfig is the strongly typed per-role agent configuration. The role set
// is closed; unknown role keys fail validation.
type RoleConfig struct {
	Model string `yaml:"model"`
	Flags string `yaml:"flags"`
}
