package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memorySink collects entries in memory for assertions
type memorySink struct {
	mu      sync.Mutex
	entries [][]byte
	failing bool
}

func (s *memorySink) Write(ctx context.Context, entry []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("sink failure")
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memorySink) Close() error { return nil }
func (s *memorySink) Name() string { return "memory" }
func (s *memorySink) Type() string { return "memory" }

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newMemoryDevice(name string, failing bool) (Device, *memorySink) {
	sink := &memorySink{failing: failing}
	device := NewDevice(name, NewJSONFormat(), sink, &DeviceConfig{
		Name:    name,
		Enabled: true,
	})
	return device, sink
}

func testEvent() *Event {
	return &Event{
		Type:      EventTokenIssued,
		Timestamp: time.Now().UTC(),
		TokenID:   "tok-1",
	}
}

func TestManagerRegisterAndLog(t *testing.T) {
	m := NewManager(nil)

	device, sink := newMemoryDevice("primary", false)
	if err := m.RegisterDevice("primary", device); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}

	ok, err := m.LogEvent(context.Background(), testEvent())
	if err != nil {
		t.Errorf("LogEvent returned error: %v", err)
	}
	if !ok {
		t.Error("LogEvent should report success")
	}
	if sink.count() != 1 {
		t.Errorf("Expected 1 entry, got %d", sink.count())
	}
}

func TestManagerDuplicateRegistration(t *testing.T) {
	m := NewManager(nil)

	device, _ := newMemoryDevice("primary", false)
	if err := m.RegisterDevice("primary", device); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}
	if err := m.RegisterDevice("primary", device); err == nil {
		t.Error("Duplicate registration should fail")
	}
}

func TestManagerNoDevices(t *testing.T) {
	m := NewManager(nil)

	ok, err := m.LogEvent(context.Background(), testEvent())
	if err != nil {
		t.Errorf("LogEvent with no devices returned error: %v", err)
	}
	if ok {
		t.Error("LogEvent with no devices should report no success")
	}
}

func TestManagerAtLeastOneSuccess(t *testing.T) {
	m := NewManager(nil)

	good, goodSink := newMemoryDevice("good", false)
	bad, _ := newMemoryDevice("bad", true)

	if err := m.RegisterDevice("good", good); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}
	if err := m.RegisterDevice("bad", bad); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}

	ok, err := m.LogEvent(context.Background(), testEvent())
	if !ok {
		t.Error("LogEvent should succeed when one device works")
	}
	if err == nil {
		t.Error("LogEvent should still surface the failing device error")
	}
	if goodSink.count() != 1 {
		t.Errorf("Expected 1 entry on the working device, got %d", goodSink.count())
	}
}

func TestManagerUnregister(t *testing.T) {
	m := NewManager(nil)

	device, sink := newMemoryDevice("primary", false)
	if err := m.RegisterDevice("primary", device); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}
	if err := m.UnregisterDevice("primary"); err != nil {
		t.Fatalf("Failed to unregister device: %v", err)
	}

	ok, _ := m.LogEvent(context.Background(), testEvent())
	if ok {
		t.Error("LogEvent should not succeed after unregistration")
	}
	if sink.count() != 0 {
		t.Error("Unregistered device should receive no entries")
	}

	if err := m.UnregisterDevice("primary"); err == nil {
		t.Error("Unregistering a missing device should fail")
	}
}
