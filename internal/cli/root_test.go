package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/acuy-d/bmadflow/internal/approval"
	"github.com/acuy-d/bmadflow/internal/checkpoint"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "bmadflow version") {
		t.Errorf("output = %q, want version string", out)
	}
}

func TestApproveWritesDecisionFile(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "approve", "p1", "--state-dir", dir, "--note", "looks good")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !strings.Contains(out, "approve decision recorded") {
		t.Errorf("output = %q, want confirmation", out)
	}

	var d approval.Decision
	if err := checkpoint.ReadJSON(filepath.Join(dir, "approvals", "p1.json"), &d); err != nil {
		t.Fatalf("read decision file: %v", err)
	}
	if d.Outcome != approval.OutcomeApprove {
		t.Errorf("Outcome = %q, want approve", d.Outcome)
	}
	if d.Note != "looks good" {
		t.Errorf("Note = %q, want %q", d.Note, "looks good")
	}
}

func TestModifyParsesPayload(t *testing.T) {
	dir := t.TempDir()
	if _, err := execute(t, "modify", "p2", "component=billing", "region=eu", "--state-dir", dir); err != nil {
		t.Fatalf("modify: %v", err)
	}

	var d approval.Decision
	if err := checkpoint.ReadJSON(filepath.Join(dir, "approvals", "p2.json"), &d); err != nil {
		t.Fatalf("read decision file: %v", err)
	}
	if d.Outcome != approval.OutcomeModify {
		t.Errorf("Outcome = %q, want modify", d.Outcome)
	}
	if d.Payload["component"] != "billing" || d.Payload["region"] != "eu" {
		t.Errorf("Payload = %v, want component=billing region=eu", d.Payload)
	}
}

func TestModifyRejectsMalformedPair(t *testing.T) {
	if _, err := execute(t, "modify", "p3", "not-a-pair", "--state-dir", t.TempDir()); err == nil {
		t.Fatal("expected error for malformed key=value")
	}
}

func TestConfigValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bmadflow.yaml")
	content := `
pipeline:
  name: sample
  phases:
    - name: business
      tasks:
        - description: "Brief for {{objective}}"
          role: architect
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "config", "validate", "-f", path)
	if err != nil {
		t.Fatalf("config validate: %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "Configuration is valid.") {
		t.Errorf("output = %q, want valid confirmation", out)
	}
}

func TestStatusWithNoPipelines(t *testing.T) {
	out, err := execute(t, "status", "--state-dir", t.TempDir())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "No pipelines found.") {
		t.Errorf("output = %q, want empty-state message", out)
	}
}

func TestRunDryRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bmadflow.yaml")
	content := `
pipeline:
  name: sample
  checkpoint_interval: 1
  phases:
    - name: business
      tasks:
        - description: "Brief for {{objective}}"
          role: architect
    - name: models
      tasks:
        - description: "Design for {{objective}}"
          role: architect
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := execute(t, "run", "a sample objective",
		"-f", cfgPath, "--state-dir", dir, "--mode", "dry-run")
	if err != nil {
		t.Fatalf("run: %v (output: %s)", err, out)
	}
	if !strings.Contains(out, "COMPLETED") {
		t.Errorf("output = %q, want COMPLETED status", out)
	}

	store := checkpoint.NewStore(filepath.Join(dir, "pipelines"), newLogger())
	ids, err := store.ListPipelines()
	if err != nil {
		t.Fatalf("ListPipelines: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d pipelines, want 1", len(ids))
	}
	cps, err := store.List(ids[0])
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cps) != 2 {
		t.Errorf("got %d checkpoints, want 2", len(cps))
	}
}
