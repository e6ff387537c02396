// Package audit writes an immutable trail of download access
// decisions. Every issuance, validation, denial, recording and
// lifecycle change produces one event, formatted and persisted by one
// or more devices. Token secrets never reach a sink in the clear; they
// are HMAC salted so correlated analysis stays possible without
// exposing usable credentials.
package audit

import (
	"context"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventTokenIssued      EventType = "token_issued"
	EventTokenValidated   EventType = "token_validated"
	EventAccessDenied     EventType = "access_denied"
	EventDownloadRecorded EventType = "download_recorded"
	EventDownloadFailed   EventType = "download_failed"
	EventTokenRegenerated EventType = "token_regenerated"
	EventTokenDeactivated EventType = "token_deactivated"
	EventJanitorSweep     EventType = "janitor_sweep"
)

// Event is a single audit log entry.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`

	// Token identity. TokenSecret carries the presented secret string
	// and is salted by the format before it reaches any sink.
	TokenID     string `json:"token_id,omitempty"`
	TokenSecret string `json:"token_secret,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`

	// Classification context for issuance requests.
	Identifier string `json:"identifier,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Confidence int    `json:"confidence,omitempty"`

	// Denial code when access was refused.
	Denial string `json:"denial,omitempty"`

	// Transfer details for recorded downloads.
	FileKey     string `json:"file_key,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Clone creates a deep copy of the Event to avoid data races between
// devices formatting the same entry.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}

	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// Format defines the serialization format for audit events
type Format interface {
	// FormatEvent formats an event for writing
	FormatEvent(ctx context.Context, event *Event) ([]byte, error)

	// Name returns the format name
	Name() string
}

// Sink is the interface for audit log destinations
type Sink interface {
	// Write writes the formatted event to the sink
	Write(ctx context.Context, entry []byte) error

	// Close closes the sink and releases resources
	Close() error

	// Name returns the sink name
	Name() string

	// Type returns the sink type (file, buffered, etc.)
	Type() string
}

// Device combines a format and a sink
type Device interface {
	// LogEvent logs an event
	LogEvent(ctx context.Context, event *Event) error

	// LogTestEvent logs a test event to verify the device works
	LogTestEvent(ctx context.Context) error

	// Close closes the device
	Close() error

	// Name returns the device name
	Name() string

	// Enabled returns whether the device is enabled
	Enabled() bool

	// SetEnabled sets the enabled state
	SetEnabled(enabled bool)
}

// FilterFunc is a function that filters audit events
type FilterFunc func(event *Event) bool

// SaltFunc is a function that salts sensitive data
type SaltFunc func(ctx context.Context, data string) (string, error)

// Manager fans events out to registered devices
type Manager interface {
	// RegisterDevice registers a new audit device
	RegisterDevice(name string, device Device) error

	// UnregisterDevice unregisters and closes an audit device
	UnregisterDevice(name string) error

	// ListDevices returns all registered device names
	ListDevices() []string

	// LogEvent logs an event to all enabled devices.
	// Returns (continue, error) where continue is true if at least one
	// device succeeded.
	LogEvent(ctx context.Context, event *Event) (bool, error)

	// Close closes all devices
	Close() error
}
