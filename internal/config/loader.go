package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a run configuration from the given YAML file path,
// then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config found.
// Search order: ./bmadflow.yaml, ~/.bmadflow/config.yaml. If none exists, the
// built-in four-phase BMAD pipeline is returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"bmadflow.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".bmadflow", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Default(), nil
}

// Default returns the built-in BMAD pipeline: business, models, actions, and
// deliverables, one agent task each.
func Default() *Config {
	cfg := &Config{
		Pipeline: Pipeline{
			Name: "bmad",
			Phases: []Phase{
				{
					Name: "business",
					Tasks: []TaskTemplate{
						{Description: "Analyze the objective and produce a business brief for: {{objective}}", Role: "architect"},
					},
				},
				{
					Name: "models",
					Tasks: []TaskTemplate{
						{Description: "Design the architecture and data models for: {{objective}}", Role: "architect"},
					},
				},
				{
					Name: "actions",
					Tasks: []TaskTemplate{
						{Description: "Implement the planned work for: {{objective}}", Role: "developer"},
					},
				},
				{
					Name: "deliverables",
					Tasks: []TaskTemplate{
						{Description: "Test and package the deliverables for: {{objective}}", Role: "tester"},
					},
				},
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills unset pipeline-level values.
func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline

	if p.Mode == "" {
		p.Mode = "auto"
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 2
	}
	if p.CheckpointInterval == 0 {
		p.CheckpointInterval = 5
	}
	if p.Concurrency == 0 {
		p.Concurrency = 4
	}
	if p.TaskTimeout == "" {
		p.TaskTimeout = "10m"
	}
	if p.ShutdownGrace == "" {
		p.ShutdownGrace = "10s"
	}
}
