package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no token matches the lookup.
	ErrNotFound = errors.New("token not found")

	// ErrLimitReached is returned by IncrementDownloadCount when the
	// quota guard rejects the increment.
	ErrLimitReached = errors.New("download limit reached")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("token store is closed")
)

// Store is the durable record of issued tokens and their download
// activity. Implementations must provide an atomic bounded increment
// and a conditional active-to-inactive transition: deactivating an
// already-inactive token is a successful no-op, which makes the janitor
// and the validator's expiry gate safe to race.
type Store interface {
	// Create persists a new token.
	Create(ctx context.Context, t *DownloadToken) error

	// GetByID returns a token by its server-generated id.
	GetByID(ctx context.Context, id string) (*DownloadToken, error)

	// GetActiveByToken returns the active token with the given secret
	// string. Inactive tokens are not visible through this lookup.
	GetActiveByToken(ctx context.Context, tokenString string) (*DownloadToken, error)

	// IncrementDownloadCount atomically increments the download count
	// by one, but only while count < maxDownloads and the token is
	// active. It returns the post-increment state. The guard must be
	// part of the same atomic operation as the increment, never a
	// separate read.
	IncrementDownloadCount(ctx context.Context, id string) (*DownloadToken, error)

	// Deactivate transitions the token from active to inactive with the
	// given reason. If the token is already inactive the call succeeds
	// without changing the recorded reason or timestamp.
	Deactivate(ctx context.Context, id string, reason DeactivationReason, at time.Time) error

	// ReplaceSecret swaps the secret string of a token, leaving quota
	// and scope untouched, and records when and why.
	ReplaceSecret(ctx context.Context, id, newToken, reason string, at time.Time) error

	// AppendActivity appends an immutable download activity row.
	AppendActivity(ctx context.Context, a *DownloadActivity) error

	// ListActivities returns the most recent activity rows for a token.
	ListActivities(ctx context.Context, tokenID string, limit int) ([]*DownloadActivity, error)

	// ListExpired returns up to limit active tokens whose expiry is
	// before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*DownloadToken, error)

	Close() error
}
