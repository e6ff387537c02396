package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DeviceConfig contains configuration for an audit device
type DeviceConfig struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Enabled     bool          `json:"enabled"`
	Format      string        `json:"format"`
	Prefix      string        `json:"prefix,omitempty"`
	HMACKey     string        `json:"hmac_key,omitempty"`
	BufferSize  int           `json:"buffer_size,omitempty"`
	FlushPeriod time.Duration `json:"flush_period,omitempty"`

	// Event filtering
	IncludeEvents []EventType `json:"include_events,omitempty"`
	ExcludeEvents []EventType `json:"exclude_events,omitempty"`
}

// device implements the Device interface
type device struct {
	mu      sync.RWMutex
	name    string
	format  Format
	sink    Sink
	enabled bool
	filters []FilterFunc
	config  *DeviceConfig
}

// NewDevice creates a new audit device
func NewDevice(name string, format Format, sink Sink, config *DeviceConfig) Device {
	if config == nil {
		config = &DeviceConfig{
			Name:    name,
			Enabled: true,
		}
	}

	d := &device{
		name:    name,
		format:  format,
		sink:    sink,
		enabled: config.Enabled,
		config:  config,
		filters: make([]FilterFunc, 0),
	}

	d.setupEventFilters()

	return d
}

// setupEventFilters creates filter functions from the event lists
func (d *device) setupEventFilters() {
	if len(d.config.ExcludeEvents) > 0 {
		excluded := make(map[EventType]struct{}, len(d.config.ExcludeEvents))
		for _, t := range d.config.ExcludeEvents {
			excluded[t] = struct{}{}
		}
		d.filters = append(d.filters, func(event *Event) bool {
			_, skip := excluded[event.Type]
			return !skip
		})
	}

	if len(d.config.IncludeEvents) > 0 {
		included := make(map[EventType]struct{}, len(d.config.IncludeEvents))
		for _, t := range d.config.IncludeEvents {
			included[t] = struct{}{}
		}
		d.filters = append(d.filters, func(event *Event) bool {
			_, keep := included[event.Type]
			return keep
		})
	}
}

// AddFilter adds a filter function to the device
func (d *device) AddFilter(filter FilterFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filters = append(d.filters, filter)
}

// shouldLog checks if an event passes all filters
func (d *device) shouldLog(event *Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, filter := range d.filters {
		if !filter(event) {
			return false
		}
	}
	return true
}

// LogEvent logs an event
func (d *device) LogEvent(ctx context.Context, event *Event) error {
	d.mu.RLock()
	enabled := d.enabled
	d.mu.RUnlock()

	if !enabled {
		return nil
	}
	if !d.shouldLog(event) {
		return nil
	}

	formatted, err := d.format.FormatEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to format event: %w", err)
	}

	if err := d.sink.Write(ctx, formatted); err != nil {
		return fmt.Errorf("failed to write to sink: %w", err)
	}
	return nil
}

// LogTestEvent logs a throwaway event to verify the device works
func (d *device) LogTestEvent(ctx context.Context) error {
	event := &Event{
		Type:      "test",
		Timestamp: time.Now().UTC(),
		RequestID: "test-request-id",
		ClientIP:  "127.0.0.1",
	}

	formatted, err := d.format.FormatEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to format test event: %w", err)
	}
	if err := d.sink.Write(ctx, formatted); err != nil {
		return fmt.Errorf("failed to write test event to sink: %w", err)
	}
	return nil
}

// Close closes the device
func (d *device) Close() error {
	return d.sink.Close()
}

// Name returns the device name
func (d *device) Name() string {
	return d.name
}

// Enabled returns whether the device is enabled
func (d *device) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetEnabled sets the enabled state
func (d *device) SetEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = enabled
}
