package core

import (
	"context"
	"fmt"
	"time"

	"github.com/avastel/gatekeeper/audit"
	"github.com/avastel/gatekeeper/token"
)

// RegenerateToken replaces the secret string of an existing token,
// keeping its quota, scope and expiry. The old secret stops working
// immediately.
func (c *Core) RegenerateToken(ctx context.Context, tokenID, reason, requestID string) (*token.DownloadToken, error) {
	if reason == "" {
		reason = "user_requested"
	}

	regenerated, err := c.issuer.Regenerate(ctx, tokenID, reason)
	if err != nil {
		return nil, err
	}

	c.audit(ctx, &audit.Event{
		Type:        audit.EventTokenRegenerated,
		RequestID:   requestID,
		TokenID:     regenerated.ID,
		TokenSecret: regenerated.Token,
		UserID:      regenerated.UserID,
		ProductID:   regenerated.ProductID,
		Metadata: map[string]interface{}{
			"reason": reason,
		},
	})

	return regenerated, nil
}

// DeactivateToken manually closes a token. Already inactive tokens
// are left untouched and the call succeeds.
func (c *Core) DeactivateToken(ctx context.Context, tokenID string, reason token.DeactivationReason, requestID string) error {
	switch reason {
	case token.ReasonManual, token.ReasonSecurity:
	case "":
		reason = token.ReasonManual
	default:
		return fmt.Errorf("core: reason %q is not valid for manual deactivation", reason)
	}

	if err := c.store.Deactivate(ctx, tokenID, reason, time.Now()); err != nil {
		return err
	}

	c.audit(ctx, &audit.Event{
		Type:      audit.EventTokenDeactivated,
		RequestID: requestID,
		TokenID:   tokenID,
		Metadata: map[string]interface{}{
			"reason": string(reason),
		},
	})

	return nil
}

// GetToken fetches a token by id.
func (c *Core) GetToken(ctx context.Context, tokenID string) (*token.DownloadToken, error) {
	return c.store.GetByID(ctx, tokenID)
}

// ResolveActiveToken maps a presented secret string onto its token.
// Inactive tokens are not visible through this lookup.
func (c *Core) ResolveActiveToken(ctx context.Context, tokenString string) (*token.DownloadToken, error) {
	return c.store.GetActiveByToken(ctx, tokenString)
}

// TokenActivities returns the most recent download activity rows for
// a token, newest first.
func (c *Core) TokenActivities(ctx context.Context, tokenID string, limit int) ([]*token.DownloadActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.store.ListActivities(ctx, tokenID, limit)
}
