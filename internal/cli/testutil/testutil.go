// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

// ProjectConfig is the agriflow.yaml written by SetupTestProject. Paths are
// relative to the project directory.
const ProjectConfig = `environment: test
state_path: .agriflow/state.db
log_format: json
staging:
  driver: fs
  dir: data/raw
target:
  type: sqlite
  database: .agriflow/warehouse.db
pipeline:
  unresolved_keys: quarantine
`

// SetupTestProject creates a temporary project directory with an
// agriflow.yaml using a SQLite warehouse and a local staging directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "data", "raw"), 0o750); err != nil {
		t.Fatalf("failed to create staging directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "agriflow.yaml"), []byte(ProjectConfig), 0o600); err != nil {
		t.Fatalf("failed to create agriflow.yaml: %v", err)
	}
	return tmpDir
}

// WriteStagingFile writes a raw file into the project's staging directory.
func WriteStagingFile(t *testing.T, projectDir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(projectDir, "data", "raw", name), []byte(content), 0o600); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// DecodeJSON unmarshals command output into v, failing the test on error.
func DecodeJSON(t *testing.T, s string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(s), v); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, s)
	}
}
