package token

import (
	"context"
	"errors"
	"io"
	"time"

	log "github.com/avastel/gatekeeper/logger"
)

func testLogger() log.Logger {
	return log.New(&log.Config{
		Level:       log.ErrorLevel,
		Format:      log.JSONFormat,
		Outputs:     []io.Writer{io.Discard},
		Environment: "production",
	})
}

// deactivateRefusingStore simulates a backend that accepts reads and
// increments but rejects every status transition.
type deactivateRefusingStore struct {
	Store
}

func (s *deactivateRefusingStore) Deactivate(ctx context.Context, id string, reason DeactivationReason, at time.Time) error {
	return errors.New("write refused")
}

func testToken(id, secret string) *DownloadToken {
	now := time.Now()
	return &DownloadToken{
		ID:           id,
		Token:        secret,
		UserID:       "user-1",
		OrderID:      "order-1",
		ProductID:    "prod-1",
		FileKeys:     []string{"downloads/prod-1/archive.zip"},
		MaxDownloads: 3,
		CreatedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
		Status:       StatusActive,
		UserIP:       "203.0.113.10",
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}
