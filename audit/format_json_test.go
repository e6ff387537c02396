package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestJSONFormatSaltsTokenSecret(t *testing.T) {
	hmacer := NewHMACer("test-key")
	format := NewJSONFormat(WithSaltFunc(hmacer.SaltFunc()))

	event := &Event{
		Type:        EventTokenIssued,
		Timestamp:   time.Now().UTC(),
		TokenID:     "tok-1",
		TokenSecret: "dlt_supersecret",
		UserID:      "user-1",
	}

	data, err := format.FormatEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("Failed to format event: %v", err)
	}

	if strings.Contains(string(data), "dlt_supersecret") {
		t.Error("Formatted output must not contain the raw token secret")
	}
	if !strings.Contains(string(data), "hmac-sha256:") {
		t.Error("Formatted output should contain the salted secret")
	}

	// The source event is untouched
	if event.TokenSecret != "dlt_supersecret" {
		t.Error("Formatting must not mutate the original event")
	}
}

func TestJSONFormatDropsSecretWithoutSaltFunc(t *testing.T) {
	format := NewJSONFormat()

	event := &Event{
		Type:        EventTokenIssued,
		Timestamp:   time.Now().UTC(),
		TokenSecret: "dlt_supersecret",
	}

	data, err := format.FormatEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("Failed to format event: %v", err)
	}

	if strings.Contains(string(data), "dlt_supersecret") {
		t.Error("Raw token secret must be dropped when no salt function is set")
	}
}

func TestJSONFormatOmitFields(t *testing.T) {
	format := NewJSONFormat(WithOmitFields([]string{"user_agent", "client_ip"}))

	event := &Event{
		Type:      EventDownloadRecorded,
		Timestamp: time.Now().UTC(),
		ClientIP:  "203.0.113.10",
		UserAgent: "Mozilla/5.0",
	}

	data, err := format.FormatEvent(context.Background(), event)
	if err != nil {
		t.Fatalf("Failed to format event: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if _, ok := decoded["client_ip"]; ok {
		t.Error("client_ip should be omitted")
	}
	if _, ok := decoded["user_agent"]; ok {
		t.Error("user_agent should be omitted")
	}
}

func TestJSONFormatPrefix(t *testing.T) {
	format := NewJSONFormat(WithPrefix("AUDIT: "))

	data, err := format.FormatEvent(context.Background(), &Event{
		Type:      EventJanitorSweep,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to format event: %v", err)
	}

	if !strings.HasPrefix(string(data), "AUDIT: ") {
		t.Errorf("Expected prefix, got: %s", string(data))
	}
}
