package config

import (
	"fmt"
	"time"

	"github.com/acuy-d/bmadflow/internal/agent"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// validModes is the closed set of run modes.
var validModes = map[string]bool{
	"auto":    true,
	"semi":    true,
	"dry-run": true,
}

// Validate checks a Config for structural and semantic errors. It returns a
// slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if p.Name == "" {
		errs = append(errs, ValidationError{Field: "pipeline.name", Message: "is required"})
	}
	if !validModes[p.Mode] {
		errs = append(errs, ValidationError{
			Field:   "pipeline.mode",
			Message: fmt.Sprintf("unknown mode %q (valid: auto, semi, dry-run)", p.Mode),
		})
	}
	if p.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "pipeline.max_retries", Message: "must be >= 0"})
	}
	if p.CheckpointInterval < 1 {
		errs = append(errs, ValidationError{Field: "pipeline.checkpoint_interval", Message: "must be >= 1"})
	}
	if p.Concurrency < 1 {
		errs = append(errs, ValidationError{Field: "pipeline.concurrency", Message: "must be >= 1"})
	}
	if p.TaskTimeout != "" {
		if _, err := time.ParseDuration(p.TaskTimeout); err != nil {
			errs = append(errs, ValidationError{Field: "pipeline.task_timeout", Message: "invalid duration"})
		}
	}
	if p.ShutdownGrace != "" {
		if _, err := time.ParseDuration(p.ShutdownGrace); err != nil {
			errs = append(errs, ValidationError{Field: "pipeline.shutdown_grace", Message: "invalid duration"})
		}
	}

	if len(p.Phases) == 0 {
		errs = append(errs, ValidationError{Field: "pipeline.phases", Message: "at least one phase is required"})
	}

	phaseNames := make(map[string]bool)
	for i, ph := range p.Phases {
		prefix := fmt.Sprintf("pipeline.phases[%d]", i)

		if ph.Name == "" {
			errs = append(errs, ValidationError{Field: prefix + ".name", Message: "is required"})
			continue
		}
		if phaseNames[ph.Name] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate phase name %q", ph.Name),
			})
		}
		phaseNames[ph.Name] = true

		if ph.IsEnabled() && len(ph.Tasks) == 0 {
			errs = append(errs, ValidationError{
				Field:   prefix + ".tasks",
				Message: "enabled phase must have at least one task",
			})
		}

		for j, task := range ph.Tasks {
			taskPrefix := fmt.Sprintf("%s.tasks[%d]", prefix, j)
			if task.Description == "" {
				errs = append(errs, ValidationError{Field: taskPrefix + ".description", Message: "is required"})
			}
			if _, err := agent.ParseRole(task.Role); err != nil {
				errs = append(errs, ValidationError{
					Field:   taskPrefix + ".role",
					Message: fmt.Sprintf("unknown role %q", task.Role),
				})
			}
		}
	}

	// Role keys are a closed set; a typo here would silently drop config.
	for name := range p.Roles {
		if _, err := agent.ParseRole(name); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.roles.%s", name),
				Message: "unknown role",
			})
		}
	}

	return errs
}
