// Package delivery produces short-lived URLs for the actual file
// bytes. The access control core decides whether a download may
// happen; this package only turns an authorized file key into
// something a client can fetch.
package delivery

import (
	"context"
	"time"
)

// DefaultURLTTL is how long a signed URL stays fetchable. Kept short
// so a leaked URL is worth little; the token itself governs quota.
const DefaultURLTTL = 15 * time.Minute

// URLSigner turns a storage file key into a fetchable URL.
type URLSigner interface {
	SignDownloadURL(ctx context.Context, fileKey string, ttl time.Duration) (string, error)
}
