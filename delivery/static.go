package delivery

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Verify interface is satisfied
var _ URLSigner = (*StaticSigner)(nil)

// StaticSigner builds unsigned URLs under a fixed base. Development
// and test use only.
type StaticSigner struct {
	baseURL string
}

func NewStaticSigner(baseURL string) *StaticSigner {
	return &StaticSigner{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *StaticSigner) SignDownloadURL(ctx context.Context, fileKey string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	expires := time.Now().Add(ttl).Unix()
	return s.baseURL + "/" + url.PathEscape(fileKey) + "?expires=" + strconv.FormatInt(expires, 10), nil
}
