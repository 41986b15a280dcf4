package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writePipeline(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, sub := range []string{"run", "validate", "history", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := executeCommand("nonexistent")
	if err == nil {
		t.Error("expected error for unknown command, got nil")
	}
}

func TestValidateCommand(t *testing.T) {
	good := writePipeline(t, `
steps:
  - name: gcr.io/${PROJECT_ID}/builder
    id: build
    args: ["build", "-t", "app:${_TAG}"]
substitutions:
  _TAG: v1
images:
  - app:${_TAG}
`)
	out, err := executeCommand("validate", good, "--substitutions", "PROJECT_ID=demo")
	if err != nil {
		t.Fatalf("unexpected error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "OK") {
		t.Errorf("expected OK, got: %s", out)
	}
}

func TestValidateCommand_UnresolvedVariable(t *testing.T) {
	bad := writePipeline(t, "steps:\n  - name: gcr.io/${_NOPE}/app\n")
	out, err := executeCommand("validate", bad)
	if err == nil {
		t.Fatalf("expected error, got output: %s", out)
	}
	if !strings.Contains(out, "INVALID") {
		t.Errorf("expected INVALID, got: %s", out)
	}
}

func TestValidateCommand_DuplicateIDs(t *testing.T) {
	bad := writePipeline(t, "steps:\n  - name: a\n    id: x\n  - name: b\n    id: x\n")
	_, err := executeCommand("validate", bad)
	if err == nil {
		t.Fatal("expected error for duplicate step IDs")
	}
}

func TestRunCommand_LocalBackend(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p := writePipeline(t, `
steps:
  - name: step-one
    id: greet
    args: ["sh", "-c", "echo hello"]
  - name: step-two
    args: ["true"]
timeout: 1m
`)
	out, err := executeCommand("run", p, "--backend", "local", "--dry-run=false", "--db-url=")
	if err != nil {
		t.Fatalf("unexpected error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Status: success") {
		t.Errorf("expected success status, got: %s", out)
	}

	// The run is now visible in history.
	out, err = executeCommand("history", "list", "--db-url=")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "success") {
		t.Errorf("expected run in history, got: %s", out)
	}
}

func TestRunCommand_FailureExitsNonZero(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p := writePipeline(t, `
steps:
  - name: failing
    args: ["sh", "-c", "exit 1"]
  - name: never-runs
    args: ["true"]
`)
	out, err := executeCommand("run", p, "--backend", "local", "--dry-run=false", "--db-url=")
	if err == nil {
		t.Fatalf("expected error for failed pipeline, output: %s", out)
	}
	if !strings.Contains(out, "skipped") {
		t.Errorf("expected skipped step in summary, got: %s", out)
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	p := writePipeline(t, `
steps:
  - name: gcr.io/${PROJECT_ID}/builder
    args: ["build"]
images:
  - gcr.io/${PROJECT_ID}/app:v1
`)
	out, err := executeCommand("run", p, "--dry-run", "--substitutions", "PROJECT_ID=demo")
	if err != nil {
		t.Fatalf("unexpected error: %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "gcr.io/demo/builder") {
		t.Errorf("expected resolved step in dry-run output, got: %s", out)
	}
	if !strings.Contains(out, "image: gcr.io/demo/app:v1") {
		t.Errorf("expected resolved image in dry-run output, got: %s", out)
	}
}

func TestRunCommand_BadBackend(t *testing.T) {
	p := writePipeline(t, "steps:\n  - name: a\n")
	_, err := executeCommand("run", p, "--backend", "podman")
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestParseSubstitutions(t *testing.T) {
	got, err := parseSubstitutions([]string{"_TAG=v1", "PROJECT_ID=demo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["_TAG"] != "v1" || got["PROJECT_ID"] != "demo" {
		t.Errorf("got %v", got)
	}

	if _, err := parseSubstitutions([]string{"novalue"}); err == nil {
		t.Error("expected error for pair without '='")
	}
	if _, err := parseSubstitutions([]string{"=v"}); err == nil {
		t.Error("expected error for empty key")
	}

	got, err = parseSubstitutions(nil)
	if err != nil || got != nil {
		t.Errorf("expected nil map for no pairs, got %v, %v", got, err)
	}
}
