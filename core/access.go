package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avastel/gatekeeper/audit"
	"github.com/avastel/gatekeeper/catalog"
	"github.com/avastel/gatekeeper/classifier"
	"github.com/avastel/gatekeeper/entitlement"
	log "github.com/avastel/gatekeeper/logger"
	"github.com/avastel/gatekeeper/token"
)

// DenialUnknownIdentifier is returned when the purchase identifier
// could not be classified with usable confidence. It is a corrective
// condition, not a security refusal.
const DenialUnknownIdentifier = "unrecognized_identifier"

// AccessRequest asks for a download token covering whatever the given
// identifier resolves to. The identifier may be a license key, a
// product id, an access pass product or a partner asset; Core
// classifies it before checking entitlement.
type AccessRequest struct {
	Identifier string
	UserID     string
	OrderID    string

	// Zero values take the token policy defaults.
	MaxDownloads int
	ExpiresIn    time.Duration

	SingleUse           bool
	IPValidation        bool
	UserAgentValidation bool

	ClientIP  string
	UserAgent string
	RequestID string
}

// AccessResult is the outcome of an access request. Exactly one of
// Token or Denial is set. Classification is always present.
type AccessResult struct {
	Token          *token.DownloadToken
	Classification *classifier.Result
	Decision       *entitlement.Decision
	DownloadURLs   map[string]string
	URLExpiresAt   time.Time
	Denial         *token.Denial
}

// RequestAccess classifies the identifier, checks entitlement, mints a
// token and signs download URLs for every file key in scope. Refusals
// come back as a Denial; an error means a dependency failed and the
// caller may retry.
func (c *Core) RequestAccess(ctx context.Context, req *AccessRequest) (*AccessResult, error) {
	if req.Identifier == "" {
		return nil, errors.New("core: identifier is required")
	}
	if req.UserID == "" {
		return nil, token.ErrMissingUser
	}

	result := c.classifier.Classify(ctx, req.Identifier)

	if result.Kind == classifier.KindUnknown {
		denial := &token.Denial{
			Code:       DenialUnknownIdentifier,
			Message:    "the identifier could not be recognized as a license, product or asset",
			Suggestion: result.Suggestion,
		}
		c.auditAccessDenied(ctx, req, result, denial)
		return &AccessResult{Classification: result, Denial: denial}, nil
	}

	decision, err := c.checkEntitlement(ctx, req, result)
	if err != nil {
		return nil, fmt.Errorf("core: entitlement check: %w", err)
	}

	if !decision.CanDownload {
		denial := &token.Denial{
			Code:       token.DenialNotEntitled,
			Message:    "you are not entitled to download this content",
			Suggestion: entitlementSuggestion(decision),
		}
		c.auditAccessDenied(ctx, req, result, denial)
		return &AccessResult{Classification: result, Decision: decision, Denial: denial}, nil
	}

	productID, fileKeys, err := c.resolveScope(ctx, req.Identifier, result, decision)
	if err != nil {
		return nil, err
	}

	issued, err := c.issuer.Issue(ctx, &token.IssueRequest{
		UserID:              req.UserID,
		OrderID:             req.OrderID,
		ProductID:           productID,
		FileKeys:            fileKeys,
		MaxDownloads:        req.MaxDownloads,
		ExpiresIn:           req.ExpiresIn,
		IPValidation:        req.IPValidation,
		UserAgentValidation: req.UserAgentValidation,
		SingleUse:           req.SingleUse,
		UserIP:              req.ClientIP,
		UserAgent:           req.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("core: issuing token: %w", err)
	}

	urls, urlExpiry, err := c.signFileKeys(ctx, issued.FileKeys)
	if err != nil {
		// The token exists but no URL could be produced. Leave the
		// token in place; the client can come back through the
		// download endpoint once delivery recovers.
		c.logger.Error("signing download urls after issuance",
			log.String("token_id", issued.ID),
			log.Err(err),
		)
		return nil, fmt.Errorf("core: signing download urls: %w", err)
	}

	c.audit(ctx, &audit.Event{
		Type:        audit.EventTokenIssued,
		RequestID:   req.RequestID,
		TokenID:     issued.ID,
		TokenSecret: issued.Token,
		UserID:      issued.UserID,
		OrderID:     issued.OrderID,
		ProductID:   issued.ProductID,
		Identifier:  req.Identifier,
		Kind:        string(result.Kind),
		Confidence:  result.Confidence,
		ClientIP:    req.ClientIP,
		UserAgent:   req.UserAgent,
		Metadata: map[string]interface{}{
			"method":        decision.Method,
			"max_downloads": issued.MaxDownloads,
			"expires_at":    issued.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})

	return &AccessResult{
		Token:          issued,
		Classification: result,
		Decision:       decision,
		DownloadURLs:   urls,
		URLExpiresAt:   urlExpiry,
	}, nil
}

// checkEntitlement maps the classification onto oracle queries. A
// smart hybrid identifier is tried as a license first, then as a
// product; the first positive answer wins.
func (c *Core) checkEntitlement(ctx context.Context, req *AccessRequest, result *classifier.Result) (*entitlement.Decision, error) {
	switch result.Kind {
	case classifier.KindLicense:
		return c.entitlement.CheckAccess(ctx, entitlement.AccessQuery{
			UserID:    req.UserID,
			LicenseID: req.Identifier,
		})

	case classifier.KindAccessPassProduct:
		return c.entitlement.CheckAccess(ctx, entitlement.AccessQuery{
			UserID:    req.UserID,
			ProductID: result.ProductID,
		})

	case classifier.KindSmartHybrid:
		decision, err := c.entitlement.CheckAccess(ctx, entitlement.AccessQuery{
			UserID:    req.UserID,
			LicenseID: req.Identifier,
		})
		if err != nil {
			return nil, err
		}
		if decision.CanDownload {
			return decision, nil
		}
		return c.entitlement.CheckAccess(ctx, entitlement.AccessQuery{
			UserID:    req.UserID,
			ProductID: req.Identifier,
		})

	default:
		// KindProduct and KindPartnerAsset query by the identifier
		// itself.
		return c.entitlement.CheckAccess(ctx, entitlement.AccessQuery{
			UserID:    req.UserID,
			ProductID: req.Identifier,
		})
	}
}

// resolveScope determines the product id and file keys the token will
// cover. Partner assets without catalog metadata fall back to the
// asset id as the storage key.
func (c *Core) resolveScope(ctx context.Context, identifier string, result *classifier.Result, decision *entitlement.Decision) (string, []string, error) {
	productID := identifier
	if decision.ProductID != "" {
		productID = decision.ProductID
	} else if result.ProductID != "" {
		productID = result.ProductID
	}

	product, err := c.catalog.GetProduct(ctx, productID)
	if err != nil {
		if result.Kind == classifier.KindPartnerAsset && errors.Is(err, catalog.ErrProductNotFound) {
			return productID, []string{identifier}, nil
		}
		return "", nil, fmt.Errorf("core: resolving product %q: %w", productID, err)
	}

	if len(product.FileKeys) == 0 {
		return "", nil, fmt.Errorf("core: product %q has no downloadable files", productID)
	}

	return product.ID, product.FileKeys, nil
}

// signFileKeys produces one signed URL per file key.
func (c *Core) signFileKeys(ctx context.Context, fileKeys []string) (map[string]string, time.Time, error) {
	urls := make(map[string]string, len(fileKeys))
	expiry := time.Now().Add(c.urlTTL)

	for _, key := range fileKeys {
		url, err := c.signer.SignDownloadURL(ctx, key, c.urlTTL)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("signing url for %q: %w", key, err)
		}
		urls[key] = url
	}

	return urls, expiry, nil
}

func (c *Core) auditAccessDenied(ctx context.Context, req *AccessRequest, result *classifier.Result, denial *token.Denial) {
	c.audit(ctx, &audit.Event{
		Type:       audit.EventAccessDenied,
		RequestID:  req.RequestID,
		UserID:     req.UserID,
		OrderID:    req.OrderID,
		Identifier: req.Identifier,
		Kind:       string(result.Kind),
		Confidence: result.Confidence,
		Denial:     denial.Code,
		ClientIP:   req.ClientIP,
		UserAgent:  req.UserAgent,
	})
}

func entitlementSuggestion(decision *entitlement.Decision) string {
	if decision.Reason != "" {
		return decision.Reason
	}
	return "purchase the product or activate a license covering it"
}
