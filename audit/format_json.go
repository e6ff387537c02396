package audit

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONFormat implements the Format interface for newline-delimited
// JSON output. Without a salt function the token secret is dropped
// entirely rather than written in the clear.
type JSONFormat struct {
	prefix     string
	saltFn     SaltFunc
	omitFields []string
}

// JSONFormatOption is a functional option for JSONFormat
type JSONFormatOption func(*JSONFormat)

// WithPrefix sets a prefix for each log line
func WithPrefix(prefix string) JSONFormatOption {
	return func(f *JSONFormat) {
		f.prefix = prefix
	}
}

// WithSaltFunc sets a salt function for the token secret
func WithSaltFunc(fn SaltFunc) JSONFormatOption {
	return func(f *JSONFormat) {
		f.saltFn = fn
	}
}

// WithOmitFields sets fields to omit from output. Supported fields:
// user_agent, client_ip, metadata.
func WithOmitFields(fields []string) JSONFormatOption {
	return func(f *JSONFormat) {
		f.omitFields = fields
	}
}

// NewJSONFormat creates a new JSON format
func NewJSONFormat(opts ...JSONFormatOption) *JSONFormat {
	f := &JSONFormat{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FormatEvent formats an event as one JSON line
func (f *JSONFormat) FormatEvent(ctx context.Context, event *Event) ([]byte, error) {
	// Work on a copy so devices sharing the event do not observe the
	// salted value.
	entry := event.Clone()

	if entry.TokenSecret != "" {
		if f.saltFn == nil {
			entry.TokenSecret = ""
		} else {
			salted, err := f.saltFn(ctx, entry.TokenSecret)
			if err != nil {
				return nil, fmt.Errorf("failed to salt token secret: %w", err)
			}
			entry.TokenSecret = salted
		}
	}

	for _, field := range f.omitFields {
		switch field {
		case "user_agent":
			entry.UserAgent = ""
		case "client_ip":
			entry.ClientIP = ""
		case "metadata":
			entry.Metadata = nil
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}

	if f.prefix != "" {
		return append([]byte(f.prefix), data...), nil
	}
	return data, nil
}

// Name returns the format name
func (f *JSONFormat) Name() string {
	return "json"
}
