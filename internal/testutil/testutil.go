// Package testutil provides testing utilities for gaffer tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// SetupCoordDir creates a temporary coordination directory for testing.
// The directory is automatically cleaned up when the test completes.
func SetupCoordDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "locks"), 0755); err != nil {
		t.Fatalf("failed to create locks directory: %v", err)
	}
	return dir
}

// WriteFile writes raw content at a relative path under dir, creating
// parent directories as needed.
func WriteFile(t *testing.T, dir, rel string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
	return path
}

// WriteJSON marshals v and writes it at a relative path under dir.
func WriteJSON(t *testing.T, dir, rel string, v any) string {
	t.Helper()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal %s: %v", rel, err)
	}
	return WriteFile(t, dir, rel, data)
}

// ReadJSON reads and unmarshals a file at a relative path under dir.
func ReadJSON(t *testing.T, dir, rel string, v any) {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, rel))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal %s: %v", rel, err)
	}
}

// FileExists reports whether a relative path under dir exists.
func FileExists(t *testing.T, dir, rel string) bool {
	t.Helper()

	_, err := os.Stat(filepath.Join(dir, rel))
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	t.Fatalf("failed to stat %s: %v", rel, err)
	return false
}
