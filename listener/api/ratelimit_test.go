package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_AllowsWithinBurst(t *testing.T) {
	limiter, err := newIPRateLimiter(1, 3, 100)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.allow("203.0.113.10"))
	}
	assert.False(t, limiter.allow("203.0.113.10"))
}

func TestIPRateLimiter_TracksClientsSeparately(t *testing.T) {
	limiter, err := newIPRateLimiter(1, 1, 100)
	require.NoError(t, err)

	assert.True(t, limiter.allow("203.0.113.10"))
	assert.False(t, limiter.allow("203.0.113.10"))
	assert.True(t, limiter.allow("203.0.113.11"))
}

func TestIPRateLimiter_Middleware(t *testing.T) {
	limiter, err := newIPRateLimiter(1, 1, 100)
	require.NoError(t, err)

	var served int
	handler := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/sys/health", nil)
		req.RemoteAddr = "203.0.113.10:52000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i == 0 {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Contains(t, rec.Body.String(), "rate limit exceeded")
		}
	}

	assert.Equal(t, 1, served)
}

func TestIPRateLimiter_BoundedTable(t *testing.T) {
	limiter, err := newIPRateLimiter(1, 1, 2)
	require.NoError(t, err)

	assert.True(t, limiter.allow("10.0.0.1"))
	assert.True(t, limiter.allow("10.0.0.2"))
	assert.True(t, limiter.allow("10.0.0.3"))

	// The oldest client was evicted and starts over with a full
	// bucket.
	assert.True(t, limiter.allow("10.0.0.1"))
	assert.Equal(t, 2, limiter.buckets.Len())
}
