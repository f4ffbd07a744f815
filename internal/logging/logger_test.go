package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// readEntries parses each line of the log file as one JSON entry.
func readEntries(t *testing.T, coordDir string) []map[string]any {
	t.Helper()

	f, err := os.Open(filepath.Join(coordDir, LogFileName))
	if err != nil {
		t.Fatalf("failed to open log file: %v", err)
	}
	defer f.Close()

	var entries []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not valid JSON: %q", scanner.Text())
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewWritesJSONToCoordDir(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(dir, "info")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("lock acquired", "issue", 42)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	entries := readEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0]["msg"] != "lock acquired" {
		t.Errorf("msg = %v", entries[0]["msg"])
	}
	if entries[0]["issue"] != float64(42) {
		t.Errorf("issue = %v, want 42", entries[0]["issue"])
	}
	if entries[0]["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entries[0]["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(dir, "warn")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept too")
	logger.Close()

	entries := readEntries(t, dir)
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "bogus", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWithSessionAndIssueAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(dir, "info")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.WithSession("session-1").WithIssue(42).Info("working")
	logger.Close()

	entries := readEntries(t, dir)
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if entries[0]["session_id"] != "session-1" {
		t.Errorf("session_id = %v", entries[0]["session_id"])
	}
	if entries[0]["issue"] != float64(42) {
		t.Errorf("issue = %v", entries[0]["issue"])
	}
}

func TestChildLoggerDoesNotMutateParent(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(dir, "info")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = logger.WithSession("child-session")
	logger.Info("parent entry")
	logger.Close()

	entries := readEntries(t, dir)
	if _, present := entries[0]["session_id"]; present {
		t.Error("parent entry carries the child's session_id")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger, err := New(t.TempDir(), "info")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	logger.Info("nowhere")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
