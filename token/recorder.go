package token

import (
	"context"
	"fmt"
	"time"

	"github.com/avastel/gatekeeper/helper"
	log "github.com/avastel/gatekeeper/logger"
)

// DownloadEvent describes a completed or failed file transfer to
// record against a token.
type DownloadEvent struct {
	FileKey     string
	UserIP      string
	UserAgent   string
	FileSize    int64
	ContentType string
}

// RecordResult reports the token state after a successful record.
type RecordResult struct {
	Token              *DownloadToken
	RemainingDownloads int
	Deactivated        bool
}

// Recorder applies a download to a token. The quota spend and the
// subsequent deactivation decision are driven by the post-increment
// state the store returns, never by a separately read value, so
// concurrent records cannot overshoot the limit.
type Recorder struct {
	store   Store
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewRecorder(store Store, logger log.Logger, metrics *Metrics) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logger.WithSubsystem("recorder"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Record spends one download from the token's quota and appends the
// activity entry. When the increment exhausts the quota, or the token
// is single use, the token is closed with reason download_completed.
// An activity row is appended even when recording fails, so the trail
// covers refused and half-completed records.
func (r *Recorder) Record(ctx context.Context, tokenID string, event *DownloadEvent) (*RecordResult, error) {
	updated, err := r.store.IncrementDownloadCount(ctx, tokenID)
	if err != nil {
		r.appendActivity(ctx, tokenID, event, r.now(), false, err.Error())
		return nil, err
	}

	now := r.now()

	deactivated := false
	if updated.SingleUse || updated.DownloadCount >= updated.MaxDownloads {
		if err := r.store.Deactivate(ctx, tokenID, ReasonDownloadCompleted, now); err != nil {
			// The quota spend has already happened, so the row still
			// records a successful transfer.
			r.appendActivity(ctx, tokenID, event, now, true, "")
			return nil, fmt.Errorf("failed to close completed token: %w", err)
		}
		deactivated = true
	}

	r.appendActivity(ctx, tokenID, event, now, true, "")

	r.metrics.IncrementDownloadsRecorded()
	r.logger.Info("download recorded",
		log.String("token_id", tokenID),
		log.String("file_key", event.FileKey),
		log.Int("download_count", updated.DownloadCount),
		log.Bool("deactivated", deactivated))

	return &RecordResult{
		Token:              updated,
		RemainingDownloads: updated.MaxDownloads - updated.DownloadCount,
		Deactivated:        deactivated,
	}, nil
}

// RecordFailure appends a failed-transfer activity entry without
// spending quota. It is best effort.
func (r *Recorder) RecordFailure(ctx context.Context, tokenID string, event *DownloadEvent, cause string) {
	r.appendActivity(ctx, tokenID, event, r.now(), false, cause)
	r.metrics.IncrementDownloadsFailed()
}

// appendActivity writes the audit row. Activity persistence is best
// effort: a write failure is logged and swallowed because the quota
// spend has already happened and must not be rolled back.
func (r *Recorder) appendActivity(ctx context.Context, tokenID string, event *DownloadEvent, at time.Time, success bool, cause string) {
	activity := &DownloadActivity{
		ID:           helper.GenerateActivityID(),
		TokenID:      tokenID,
		FileKey:      event.FileKey,
		DownloadedAt: at,
		UserIP:       event.UserIP,
		UserAgent:    event.UserAgent,
		FileSize:     event.FileSize,
		ContentType:  event.ContentType,
		Success:      success,
		Error:        cause,
	}

	if err := r.store.AppendActivity(ctx, activity); err != nil {
		r.logger.Error("failed to append download activity",
			log.String("token_id", tokenID),
			log.Err(err))
	}
}
