package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
pipeline:
  name: widget-build
  mode: semi
  max_retries: 3
  checkpoint_interval: 2
  concurrency: 8
  task_timeout: 5m
  shutdown_grace: 15s
  roles:
    architect:
      model: model-large
    developer:
      model: model-medium
      flags: "--fast"
  phases:
    - name: business
      tasks:
        - description: "Write the brief for {{objective}}"
          role: architect
    - name: models
      parallel: true
      tasks:
        - description: "Design service A"
          role: architect
        - description: "Design service B"
          role: architect
    - name: actions
      enabled: false
      tasks:
        - description: "Implement"
          role: developer
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bmadflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p := cfg.Pipeline
	if p.Name != "widget-build" {
		t.Errorf("Name = %q, want %q", p.Name, "widget-build")
	}
	if p.Mode != "semi" {
		t.Errorf("Mode = %q, want %q", p.Mode, "semi")
	}
	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.CheckpointInterval != 2 {
		t.Errorf("CheckpointInterval = %d, want 2", p.CheckpointInterval)
	}
	if len(p.Phases) != 3 {
		t.Fatalf("Phases has %d entries, want 3", len(p.Phases))
	}
	if !p.Phases[0].IsEnabled() {
		t.Error("business phase should default to enabled")
	}
	if !p.Phases[1].Parallel {
		t.Error("models phase should be parallel")
	}
	if p.Phases[2].IsEnabled() {
		t.Error("actions phase should be disabled")
	}
	if p.Roles["architect"].Model != "model-large" {
		t.Errorf("architect model = %q, want %q", p.Roles["architect"].Model, "model-large")
	}
	if p.Roles["developer"].Flags != "--fast" {
		t.Errorf("developer flags = %q, want %q", p.Roles["developer"].Flags, "--fast")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
pipeline:
  name: minimal
  phases:
    - name: only
      tasks:
        - description: "do it"
          role: developer
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p := cfg.Pipeline
	if p.Mode != "auto" {
		t.Errorf("default Mode = %q, want auto", p.Mode)
	}
	if p.MaxRetries != 2 {
		t.Errorf("default MaxRetries = %d, want 2", p.MaxRetries)
	}
	if p.CheckpointInterval != 5 {
		t.Errorf("default CheckpointInterval = %d, want 5", p.CheckpointInterval)
	}
	if p.Concurrency != 4 {
		t.Errorf("default Concurrency = %d, want 4", p.Concurrency)
	}
	if p.TaskTimeout != "10m" {
		t.Errorf("default TaskTimeout = %q, want 10m", p.TaskTimeout)
	}
	if p.ShutdownGrace != "10s" {
		t.Errorf("default ShutdownGrace = %q, want 10s", p.ShutdownGrace)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("Default config has validation errors: %v", errs)
	}
	if len(cfg.Pipeline.Phases) != 4 {
		t.Errorf("default pipeline has %d phases, want 4", len(cfg.Pipeline.Phases))
	}
	wantOrder := []string{"business", "models", "actions", "deliverables"}
	for i, name := range wantOrder {
		if cfg.Pipeline.Phases[i].Name != name {
			t.Errorf("phase[%d] = %q, want %q", i, cfg.Pipeline.Phases[i].Name, name)
		}
	}
}

func TestValidateFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate returned errors for valid config: %v", errs)
	}
}

func TestValidateCatchesErrors(t *testing.T) {
	cfg := &Config{Pipeline: Pipeline{
		Name:               "",
		Mode:               "yolo",
		MaxRetries:         -1,
		CheckpointInterval: 0,
		Concurrency:        0,
		TaskTimeout:        "not-a-duration",
		Phases: []Phase{
			{Name: "a", Tasks: []TaskTemplate{{Description: "", Role: "wizard"}}},
			{Name: "a", Tasks: []TaskTemplate{{Description: "x", Role: "developer"}}},
			{Name: ""},
		},
		Roles: map[string]RoleConfig{"wizard": {}},
	}}

	errs := Validate(cfg)
	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}

	for _, want := range []string{
		"pipeline.name",
		"pipeline.mode",
		"pipeline.max_retries",
		"pipeline.checkpoint_interval",
		"pipeline.concurrency",
		"pipeline.task_timeout",
		"pipeline.phases[0].tasks[0].description",
		"pipeline.phases[0].tasks[0].role",
		"pipeline.phases[1].name",
		"pipeline.phases[2].name",
		"pipeline.roles.wizard",
	} {
		if !fields[want] {
			t.Errorf("Validate missed field %q (got: %v)", want, errs)
		}
	}
}

func TestValidateDisabledPhaseNeedsNoTasks(t *testing.T) {
	disabled := false
	cfg := &Config{Pipeline: Pipeline{
		Name:               "ok",
		Mode:               "auto",
		CheckpointInterval: 1,
		Concurrency:        1,
		Phases: []Phase{
			{Name: "skipped", Enabled: &disabled},
			{Name: "real", Tasks: []TaskTemplate{{Description: "x", Role: "tester"}}},
		},
	}}

	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate returned errors: %v", errs)
	}
}
