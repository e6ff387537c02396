package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSink(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	sink, err := NewFileSink(FileSinkConfig{
		Path: logPath,
	})
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	if err := sink.Write(ctx, []byte(`{"type":"token_issued"}`)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := sink.Write(ctx, []byte(`{"type":"download_recorded"}`)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Errorf("Expected 2 lines, got %d", len(lines))
	}
}

func TestFileSinkRequiresPath(t *testing.T) {
	if _, err := NewFileSink(FileSinkConfig{}); err == nil {
		t.Error("Empty path should be rejected")
	}
}

func TestFileSinkCreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "nested", "dir", "audit.log")

	sink, err := NewFileSink(FileSinkConfig{Path: logPath})
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}
	defer sink.Close()

	if err := sink.Write(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}

	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("Log file should exist: %v", err)
	}
}
