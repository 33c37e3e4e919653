package prompt

import (
	"strings"
	"testing"
)

func TestRenderExpandsVariables(t *testing.T) {
	got, err := Render("Draft the plan for {{objective}} in phase {{phase}}", Vars{
		"objective": "inventory service",
		"phase":     "business",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Draft the plan for inventory service in phase business"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	_, err := Render("Do {{objective}} with {{unknown_var}}", Vars{"objective": "x"})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if !strings.Contains(err.Error(), "unknown_var") {
		t.Errorf("error %q should name the missing variable", err)
	}
}

func TestRenderNoVariables(t *testing.T) {
	got, err := Render("plain text, nothing to expand", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "plain text, nothing to expand" {
		t.Errorf("Render = %q", got)
	}
}

func TestMergeOverrides(t *testing.T) {
	base := Vars{"objective": "old", "phase": "models"}
	merged := Merge(base, Vars{"objective": "new", "extra": "v"})

	if merged["objective"] != "new" {
		t.Errorf("objective = %q, want %q", merged["objective"], "new")
	}
	if merged["phase"] != "models" {
		t.Errorf("phase = %q, want %q", merged["phase"], "models")
	}
	if merged["extra"] != "v" {
		t.Errorf("extra = %q, want %q", merged["extra"], "v")
	}
	if base["objective"] != "old" {
		t.Error("Merge must not mutate the base map")
	}
}
