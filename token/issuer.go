package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avastel/gatekeeper/helper"
	log "github.com/avastel/gatekeeper/logger"
)

var (
	ErrNoFileKeys      = errors.New("token must cover at least one file key")
	ErrInvalidQuota    = errors.New("max downloads must be positive")
	ErrInvalidValidity = errors.New("token validity must be positive")
	ErrMissingUser     = errors.New("user id is required")
	ErrMissingProduct  = errors.New("product id is required")
)

// Policy holds the issuance defaults applied when a request does not
// set its own quota or validity window.
type Policy struct {
	DefaultMaxDownloads int
	DefaultValidity     time.Duration
	MaxValidity         time.Duration
}

func DefaultPolicy() *Policy {
	return &Policy{
		DefaultMaxDownloads: 3,
		DefaultValidity:     24 * time.Hour,
		MaxValidity:         30 * 24 * time.Hour,
	}
}

// IssueRequest describes the token to mint. Zero values for
// MaxDownloads and ExpiresIn take the policy defaults.
type IssueRequest struct {
	UserID       string
	OrderID      string
	ProductID    string
	FileKeys     []string
	MaxDownloads int
	ExpiresIn    time.Duration

	IPValidation        bool
	UserAgentValidation bool
	SingleUse           bool

	UserIP    string
	UserAgent string
}

// Issuer mints download tokens for already-authorized requests.
type Issuer struct {
	store   Store
	codec   *Codec
	policy  *Policy
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewIssuer(store Store, codec *Codec, policy *Policy, logger log.Logger, metrics *Metrics) *Issuer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Issuer{
		store:   store,
		codec:   codec,
		policy:  policy,
		logger:  logger.WithSubsystem("issuer"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Issue validates the request preconditions, mints a fresh secret and
// persists the token. Precondition violations are rejected before any
// store write happens.
func (i *Issuer) Issue(ctx context.Context, req *IssueRequest) (*DownloadToken, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	if req.ProductID == "" {
		return nil, ErrMissingProduct
	}
	if len(req.FileKeys) == 0 {
		return nil, ErrNoFileKeys
	}

	maxDownloads := req.MaxDownloads
	if maxDownloads == 0 {
		maxDownloads = i.policy.DefaultMaxDownloads
	}
	if maxDownloads < 1 {
		return nil, ErrInvalidQuota
	}
	if req.SingleUse {
		maxDownloads = 1
	}

	validity := req.ExpiresIn
	if validity == 0 {
		validity = i.policy.DefaultValidity
	}
	if validity < 0 {
		return nil, ErrInvalidValidity
	}
	if i.policy.MaxValidity > 0 && validity > i.policy.MaxValidity {
		validity = i.policy.MaxValidity
	}

	id, err := helper.GenerateTokenID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token id: %w", err)
	}

	now := i.now()
	secret, err := i.codec.GenerateSecret(req.UserID, req.ProductID, id, now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	t := &DownloadToken{
		ID:           id,
		Token:        secret,
		UserID:       req.UserID,
		OrderID:      req.OrderID,
		ProductID:    req.ProductID,
		FileKeys:     append([]string(nil), req.FileKeys...),
		MaxDownloads: maxDownloads,
		CreatedAt:    now,
		ExpiresAt:    now.Add(validity),

		IPValidation:        req.IPValidation,
		UserAgentValidation: req.UserAgentValidation,
		SingleUse:           req.SingleUse,

		Status:    StatusActive,
		UserIP:    req.UserIP,
		UserAgent: req.UserAgent,
	}

	if err := i.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to persist token: %w", err)
	}

	i.metrics.IncrementTokensIssued()
	i.logger.Info("token issued",
		log.String("token_id", t.ID),
		log.String("user_id", t.UserID),
		log.String("product_id", t.ProductID),
		log.Int("max_downloads", t.MaxDownloads),
		log.Time("expires_at", t.ExpiresAt))

	return t, nil
}

// Regenerate replaces only the secret string of an existing token. The
// quota, expiry and restriction flags are untouched, so the previous
// secret stops resolving while the usage state carries over.
func (i *Issuer) Regenerate(ctx context.Context, tokenID, reason string) (*DownloadToken, error) {
	existing, err := i.store.GetByID(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	now := i.now()
	secret, err := i.codec.GenerateSecret(existing.UserID, existing.ProductID, existing.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}

	if err := i.store.ReplaceSecret(ctx, tokenID, secret, reason, now); err != nil {
		return nil, err
	}

	i.metrics.IncrementTokensRegenerated()
	i.logger.Info("token secret regenerated",
		log.String("token_id", tokenID),
		log.String("reason", reason))

	return i.store.GetByID(ctx, tokenID)
}
