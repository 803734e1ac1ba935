package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portexec.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigLintSuccess(t *testing.T) {
	path := writeConfig(t, "timeout: 5s\nmaxBuffer: 1MiB\n")
	res := runCLI(t, nil, "config", "lint", path)
	if res.code != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.stdout != path+": OK\n" {
		t.Fatalf("unexpected stdout %q", res.stdout)
	}
	if res.stderr != "" {
		t.Fatalf("unexpected stderr %q", res.stderr)
	}
}

func TestConfigLintSchemaViolation(t *testing.T) {
	path := writeConfig(t, "logging:\n  format: xml\n")
	res := runCLI(t, nil, "--config", path, "config", "lint")
	if res.code != 1 {
		t.Fatalf("expected failure, got %+v", res)
	}
	if res.stdout != "" {
		t.Fatalf("expected empty stdout, got %q", res.stdout)
	}
	if !strings.Contains(res.stderr, "schema validation failed") || !strings.Contains(res.stderr, "logging.format") {
		t.Fatalf("stderr does not describe the violation: %q", res.stderr)
	}
}

func TestConfigLintDefaultPath(t *testing.T) {
	dir := t.TempDir()
	res := runCLI(t, nil, "--cwd", dir, "config", "lint")
	if res.code != 1 || !strings.Contains(res.stderr, "open config file") {
		t.Fatalf("expected a missing file error, got %+v", res)
	}
}

func TestInvalidConfigFailsCommands(t *testing.T) {
	path := writeConfig(t, "unknown: true\n")
	res := runCLI(t, nil, "--config", path, "which", "sh")
	if res.code != 1 || !strings.Contains(res.stderr, "schema validation failed") {
		t.Fatalf("expected configuration error, got %+v", res)
	}
}
