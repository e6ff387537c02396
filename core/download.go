package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avastel/gatekeeper/audit"
	"github.com/avastel/gatekeeper/token"
)

// DownloadRequest presents a token secret for one file transfer.
type DownloadRequest struct {
	TokenString string

	// FileKey selects which file to download. Empty means the first
	// file key in the token's scope.
	FileKey string

	ClientIP  string
	UserAgent string
	RequestID string
}

// DownloadGrant is a validated, signed download authorization. URLs
// holds one signed URL per file key in scope; FileKey and URL point at
// the requested file.
type DownloadGrant struct {
	Token              *token.DownloadToken
	RemainingDownloads int
	FileKey            string
	URL                string
	URLs               map[string]string
	URLExpiresAt       time.Time
}

// AuthorizeDownload validates the presented token against expiry,
// quota and binding restrictions, then signs a URL for the requested
// file. Validation does not consume quota; call RecordDownload after
// the transfer completes.
func (c *Core) AuthorizeDownload(ctx context.Context, req *DownloadRequest) (*DownloadGrant, *token.Denial, error) {
	validated, denial, err := c.validator.Validate(ctx, req.TokenString, token.RequestContext{
		IP:        req.ClientIP,
		UserAgent: req.UserAgent,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("core: validating token: %w", err)
	}
	if denial != nil {
		c.audit(ctx, &audit.Event{
			Type:        audit.EventAccessDenied,
			RequestID:   req.RequestID,
			TokenSecret: req.TokenString,
			Denial:      denial.Code,
			FileKey:     req.FileKey,
			ClientIP:    req.ClientIP,
			UserAgent:   req.UserAgent,
		})
		return nil, denial, nil
	}

	t := validated.Token

	fileKey := req.FileKey
	if fileKey == "" && len(t.FileKeys) > 0 {
		fileKey = t.FileKeys[0]
	}
	if !t.AllowsFileKey(fileKey) {
		denial := &token.Denial{
			Code:    token.DenialNotEntitled,
			Message: "the requested file is not covered by this token",
		}
		c.audit(ctx, &audit.Event{
			Type:        audit.EventAccessDenied,
			RequestID:   req.RequestID,
			TokenID:     t.ID,
			TokenSecret: req.TokenString,
			UserID:      t.UserID,
			ProductID:   t.ProductID,
			Denial:      denial.Code,
			FileKey:     fileKey,
			ClientIP:    req.ClientIP,
			UserAgent:   req.UserAgent,
		})
		return nil, denial, nil
	}

	urls, expiry, err := c.signFileKeys(ctx, t.FileKeys)
	if err != nil {
		return nil, nil, fmt.Errorf("core: signing download url: %w", err)
	}

	c.audit(ctx, &audit.Event{
		Type:        audit.EventTokenValidated,
		RequestID:   req.RequestID,
		TokenID:     t.ID,
		TokenSecret: req.TokenString,
		UserID:      t.UserID,
		OrderID:     t.OrderID,
		ProductID:   t.ProductID,
		FileKey:     fileKey,
		ClientIP:    req.ClientIP,
		UserAgent:   req.UserAgent,
		Metadata: map[string]interface{}{
			"remaining_downloads": validated.RemainingDownloads,
		},
	})

	return &DownloadGrant{
		Token:              t,
		RemainingDownloads: validated.RemainingDownloads,
		FileKey:            fileKey,
		URL:                urls[fileKey],
		URLs:               urls,
		URLExpiresAt:       expiry,
	}, nil, nil
}

// RecordDownload consumes one unit of quota for a completed transfer
// and appends the activity row. Sentinel errors from the store pass
// through so callers can map them onto proper responses.
func (c *Core) RecordDownload(ctx context.Context, tokenID string, event *token.DownloadEvent, requestID string) (*token.RecordResult, error) {
	result, err := c.recorder.Record(ctx, tokenID, event)
	if err != nil {
		if errors.Is(err, token.ErrLimitReached) || errors.Is(err, token.ErrNotFound) {
			c.audit(ctx, &audit.Event{
				Type:      audit.EventDownloadFailed,
				RequestID: requestID,
				TokenID:   tokenID,
				FileKey:   event.FileKey,
				ClientIP:  event.UserIP,
				UserAgent: event.UserAgent,
				Error:     err.Error(),
			})
		}
		return nil, err
	}

	c.audit(ctx, &audit.Event{
		Type:        audit.EventDownloadRecorded,
		RequestID:   requestID,
		TokenID:     result.Token.ID,
		UserID:      result.Token.UserID,
		OrderID:     result.Token.OrderID,
		ProductID:   result.Token.ProductID,
		FileKey:     event.FileKey,
		FileSize:    event.FileSize,
		ContentType: event.ContentType,
		ClientIP:    event.UserIP,
		UserAgent:   event.UserAgent,
		Metadata: map[string]interface{}{
			"remaining_downloads": result.RemainingDownloads,
			"deactivated":         result.Deactivated,
		},
	})

	if result.Deactivated {
		c.audit(ctx, &audit.Event{
			Type:      audit.EventTokenDeactivated,
			RequestID: requestID,
			TokenID:   result.Token.ID,
			UserID:    result.Token.UserID,
			ProductID: result.Token.ProductID,
			Metadata: map[string]interface{}{
				"reason": string(token.ReasonDownloadCompleted),
			},
		})
	}

	return result, nil
}

// RecordDownloadFailure notes a failed transfer without spending
// quota.
func (c *Core) RecordDownloadFailure(ctx context.Context, tokenID string, event *token.DownloadEvent, cause, requestID string) {
	c.recorder.RecordFailure(ctx, tokenID, event, cause)

	c.audit(ctx, &audit.Event{
		Type:      audit.EventDownloadFailed,
		RequestID: requestID,
		TokenID:   tokenID,
		FileKey:   event.FileKey,
		ClientIP:  event.UserIP,
		UserAgent: event.UserAgent,
		Error:     cause,
	})
}
