package token

import (
	"time"
)

// Status is the lifecycle state of a download token.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// DeactivationReason explains why a token left the active state.
// It is set exactly once, on the first deactivation, and is immutable
// thereafter.
type DeactivationReason string

const (
	ReasonExpired           DeactivationReason = "expired"
	ReasonLimitReached      DeactivationReason = "download_limit_reached"
	ReasonDownloadCompleted DeactivationReason = "download_completed"
	ReasonManual            DeactivationReason = "manual"
	ReasonSecurity          DeactivationReason = "security"
)

// DownloadToken grants bounded, time-limited download rights over a set
// of file keys. The secret Token string is the only credential a client
// ever presents; everything else is server-side state.
type DownloadToken struct {
	ID    string
	Token string

	// Scope
	UserID    string
	OrderID   string
	ProductID string
	FileKeys  []string

	// Quota
	MaxDownloads  int
	DownloadCount int

	// Temporal
	CreatedAt time.Time
	ExpiresAt time.Time

	RegeneratedAt      *time.Time
	RegenerationReason string

	// Restrictions
	IPValidation        bool
	UserAgentValidation bool
	SingleUse           bool

	// Lifecycle
	Status             Status
	DeactivationReason DeactivationReason
	DeactivatedAt      *time.Time

	// Binding metadata captured at issuance, used only as validation
	// baselines, never mutated after creation.
	UserIP    string
	UserAgent string
}

// IsExpired reports whether the token is past its expiry.
func (t *DownloadToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsActive reports whether the token is in the active state.
func (t *DownloadToken) IsActive() bool {
	return t.Status == StatusActive
}

// Remaining returns the number of downloads left before the quota is
// exhausted, never negative.
func (t *DownloadToken) Remaining() int {
	remaining := t.MaxDownloads - t.DownloadCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy of the token.
func (t *DownloadToken) Clone() *DownloadToken {
	if t == nil {
		return nil
	}
	clone := *t
	clone.FileKeys = append([]string(nil), t.FileKeys...)
	if t.RegeneratedAt != nil {
		at := *t.RegeneratedAt
		clone.RegeneratedAt = &at
	}
	if t.DeactivatedAt != nil {
		at := *t.DeactivatedAt
		clone.DeactivatedAt = &at
	}
	return &clone
}

// AllowsFileKey reports whether the given storage key is within the
// token's scope.
func (t *DownloadToken) AllowsFileKey(key string) bool {
	for _, k := range t.FileKeys {
		if k == key {
			return true
		}
	}
	return false
}

// DownloadActivity is an append-only audit record of one attempted file
// transfer. Rows are created on both success and failure and are never
// updated or deleted by this subsystem.
type DownloadActivity struct {
	ID           string
	TokenID      string
	FileKey      string
	DownloadedAt time.Time
	UserIP       string
	UserAgent    string
	FileSize     int64
	ContentType  string
	Success      bool
	Error        string
}
