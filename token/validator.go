package token

import (
	"context"
	"fmt"
	"time"

	"github.com/avastel/gatekeeper/helper"
	log "github.com/avastel/gatekeeper/logger"
)

// Denial codes returned to callers. These are expected outcomes, not
// failures of the service.
const (
	DenialNotFoundOrInactive = "not_found_or_inactive"
	DenialExpired            = "expired"
	DenialLimitReached       = "download_limit_reached"
	DenialIPMismatch         = "ip_mismatch"
	DenialDeviceMismatch     = "device_mismatch"
	DenialNotEntitled        = "not_entitled"
)

// Denial describes why a token was refused. The message never exposes
// token internals such as the stored quota or the baseline IP.
type Denial struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ValidatedToken is the successful validation result.
type ValidatedToken struct {
	Token              *DownloadToken
	RemainingDownloads int
}

// RequestContext carries the client attributes a validation checks
// restriction flags against.
type RequestContext struct {
	IP        string
	UserAgent string
}

// Validator re-checks a presented token string against expiry, usage
// limits and the device/IP restriction flags set at issuance.
type Validator struct {
	store   Store
	logger  log.Logger
	metrics *Metrics
	now     func() time.Time
}

func NewValidator(store Store, logger log.Logger, metrics *Metrics) *Validator {
	return &Validator{
		store:   store,
		logger:  logger.WithSubsystem("validator"),
		metrics: metrics,
		now:     time.Now,
	}
}

// Validate checks the presented token string. Exactly one of the three
// results is meaningful: a ValidatedToken on success, a Denial when the
// token is refused, or an error when the store itself failed. A store
// failure is never reported as a denial so callers can retry.
//
// Expiry and exhausted quota close the token; an IP or device mismatch
// only refuses this request, since a NAT change or a browser update
// must not burn the remaining quota.
func (v *Validator) Validate(ctx context.Context, tokenString string, reqCtx RequestContext) (*ValidatedToken, *Denial, error) {
	t, err := v.store.GetActiveByToken(ctx, tokenString)
	if err != nil {
		if err == ErrNotFound {
			v.metrics.IncrementValidationsDenied()
			v.logger.Info("unknown or inactive token presented",
				log.String("token_hash", helper.Get8BytesHash(tokenString)))
			return nil, &Denial{
				Code:    DenialNotFoundOrInactive,
				Message: "download token not found or no longer active",
			}, nil
		}
		return nil, nil, fmt.Errorf("token lookup failed: %w", err)
	}

	now := v.now()

	if now.After(t.ExpiresAt) {
		if err := v.store.Deactivate(ctx, t.ID, ReasonExpired, now); err != nil {
			return nil, nil, fmt.Errorf("failed to deactivate expired token: %w", err)
		}
		v.metrics.IncrementTokensExpired()
		v.metrics.IncrementValidationsDenied()
		v.logger.Info("token expired",
			log.String("token_id", t.ID),
			log.Time("expires_at", t.ExpiresAt))
		return nil, &Denial{
			Code:       DenialExpired,
			Message:    "download token has expired",
			Suggestion: "request a new download link",
		}, nil
	}

	if t.DownloadCount >= t.MaxDownloads {
		if err := v.store.Deactivate(ctx, t.ID, ReasonLimitReached, now); err != nil {
			return nil, nil, fmt.Errorf("failed to deactivate exhausted token: %w", err)
		}
		v.metrics.IncrementLimitViolations()
		v.metrics.IncrementValidationsDenied()
		v.logger.Info("token download limit reached",
			log.String("token_id", t.ID),
			log.Int("max_downloads", t.MaxDownloads))
		return nil, &Denial{
			Code:    DenialLimitReached,
			Message: "download limit reached for this token",
		}, nil
	}

	if t.IPValidation && t.UserIP != "" && t.UserIP != reqCtx.IP {
		v.metrics.IncrementIPViolations()
		v.metrics.IncrementValidationsDenied()
		v.logger.Warn("token presented from different ip",
			log.String("token_id", t.ID),
			log.String("request_ip", reqCtx.IP))
		return nil, &Denial{
			Code:       DenialIPMismatch,
			Message:    "request origin does not match the token",
			Suggestion: "retry from the network the download was purchased on",
		}, nil
	}

	if t.UserAgentValidation && t.UserAgent != "" {
		if score := DeviceSimilarity(t.UserAgent, reqCtx.UserAgent); score < deviceMatchThreshold {
			v.metrics.IncrementDeviceViolations()
			v.metrics.IncrementValidationsDenied()
			v.logger.Warn("token presented from different device",
				log.String("token_id", t.ID),
				log.Float64("similarity", score))
			return nil, &Denial{
				Code:       DenialDeviceMismatch,
				Message:    "request device does not match the token",
				Suggestion: "retry from the browser the download was purchased on",
			}, nil
		}
	}

	v.metrics.IncrementValidationsOK()
	return &ValidatedToken{
		Token:              t,
		RemainingDownloads: t.MaxDownloads - t.DownloadCount,
	}, nil, nil
}
