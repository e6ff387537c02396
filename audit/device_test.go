package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDevice(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	sink, err := NewFileSink(FileSinkConfig{
		Path: logPath,
	})
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}

	format := NewJSONFormat()
	device := NewDevice("test", format, sink, &DeviceConfig{
		Name:    "test",
		Enabled: true,
	})
	defer device.Close()

	event := &Event{
		Type:      EventDownloadRecorded,
		Timestamp: time.Now(),
		RequestID: "req-456",
		TokenID:   "tok-1",
		FileKey:   "downloads/prod-1/archive.zip",
		ClientIP:  "192.168.1.101",
	}

	ctx := context.Background()
	if err := device.LogEvent(ctx, event); err != nil {
		t.Errorf("Failed to log event: %v", err)
	}

	// Verify file contains data
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Errorf("Failed to read log file: %v", err)
	}

	if len(content) == 0 {
		t.Error("Log file is empty after logging")
	}
}

func TestDeviceDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	sink, err := NewFileSink(FileSinkConfig{Path: logPath})
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}

	device := NewDevice("test", NewJSONFormat(), sink, &DeviceConfig{
		Name:    "test",
		Enabled: false,
	})
	defer device.Close()

	if err := device.LogEvent(context.Background(), &Event{Type: EventTokenIssued}); err != nil {
		t.Errorf("Disabled device should silently accept events: %v", err)
	}

	content, _ := os.ReadFile(logPath)
	if len(content) != 0 {
		t.Error("Disabled device should not write anything")
	}
}

func TestDeviceEventFilters(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.log")

	sink, err := NewFileSink(FileSinkConfig{Path: logPath})
	if err != nil {
		t.Fatalf("Failed to create file sink: %v", err)
	}

	device := NewDevice("test", NewJSONFormat(), sink, &DeviceConfig{
		Name:          "test",
		Enabled:       true,
		ExcludeEvents: []EventType{EventJanitorSweep},
	})
	defer device.Close()

	ctx := context.Background()
	if err := device.LogEvent(ctx, &Event{Type: EventJanitorSweep, Timestamp: time.Now()}); err != nil {
		t.Errorf("Filtered event should not error: %v", err)
	}
	if err := device.LogEvent(ctx, &Event{Type: EventTokenIssued, Timestamp: time.Now()}); err != nil {
		t.Errorf("Failed to log event: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(content), string(EventJanitorSweep)) {
		t.Error("Excluded event type should not appear in the trail")
	}
	if !strings.Contains(string(content), string(EventTokenIssued)) {
		t.Error("Non-excluded event type should appear in the trail")
	}
}
