package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) (*Issuer, *InmemStore) {
	t.Helper()
	store := NewInmemStore()
	t.Cleanup(func() { store.Close() })
	codec, err := NewCodec("test-signing-key")
	require.NoError(t, err)
	return NewIssuer(store, codec, DefaultPolicy(), testLogger(), &Metrics{}), store
}

func validIssueRequest() *IssueRequest {
	return &IssueRequest{
		UserID:    "user-1",
		OrderID:   "order-1",
		ProductID: "prod-1",
		FileKeys:  []string{"downloads/prod-1/archive.zip"},
	}
}

func TestIssuer_Issue(t *testing.T) {
	issuer, store := newTestIssuer(t)
	ctx := context.Background()

	tok, err := issuer.Issue(ctx, validIssueRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, tok.ID)
	assert.True(t, strings.HasPrefix(tok.Token, TokenPrefix))
	assert.Equal(t, StatusActive, tok.Status)
	assert.Equal(t, 0, tok.DownloadCount)

	// Policy defaults applied.
	assert.Equal(t, DefaultPolicy().DefaultMaxDownloads, tok.MaxDownloads)
	assert.WithinDuration(t, time.Now().Add(DefaultPolicy().DefaultValidity), tok.ExpiresAt, 5*time.Second)

	stored, err := store.GetActiveByToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, stored.ID)
}

func TestIssuer_Preconditions(t *testing.T) {
	issuer, store := newTestIssuer(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*IssueRequest)
		wantErr error
	}{
		{"missing user", func(r *IssueRequest) { r.UserID = "" }, ErrMissingUser},
		{"missing product", func(r *IssueRequest) { r.ProductID = "" }, ErrMissingProduct},
		{"no file keys", func(r *IssueRequest) { r.FileKeys = nil }, ErrNoFileKeys},
		{"negative quota", func(r *IssueRequest) { r.MaxDownloads = -1 }, ErrInvalidQuota},
		{"negative validity", func(r *IssueRequest) { r.ExpiresIn = -time.Hour }, ErrInvalidValidity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validIssueRequest()
			tc.mutate(req)
			_, err := issuer.Issue(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	// Rejected requests must not leave partial writes behind.
	remaining, err := store.ListExpired(ctx, time.Now().Add(365*24*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestIssuer_SingleUseForcesQuotaOfOne(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	req := validIssueRequest()
	req.SingleUse = true
	req.MaxDownloads = 5

	tok, err := issuer.Issue(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, tok.MaxDownloads)
}

func TestIssuer_ValidityCappedByPolicy(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	req := validIssueRequest()
	req.ExpiresIn = 365 * 24 * time.Hour

	tok, err := issuer.Issue(context.Background(), req)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultPolicy().MaxValidity), tok.ExpiresAt, 5*time.Second)
}

func TestIssuer_RegeneratePreservesQuotaState(t *testing.T) {
	issuer, store := newTestIssuer(t)
	ctx := context.Background()

	tok, err := issuer.Issue(ctx, &IssueRequest{
		UserID:       "user-1",
		OrderID:      "order-1",
		ProductID:    "prod-1",
		FileKeys:     []string{"downloads/prod-1/archive.zip"},
		MaxDownloads: 5,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = store.IncrementDownloadCount(ctx, tok.ID)
		require.NoError(t, err)
	}

	oldSecret := tok.Token
	regenerated, err := issuer.Regenerate(ctx, tok.ID, "suspected sharing")
	require.NoError(t, err)

	assert.NotEqual(t, oldSecret, regenerated.Token)
	assert.Equal(t, 2, regenerated.DownloadCount)
	assert.Equal(t, 5, regenerated.MaxDownloads)
	assert.Equal(t, tok.ExpiresAt.Unix(), regenerated.ExpiresAt.Unix())
	assert.Equal(t, "suspected sharing", regenerated.RegenerationReason)
	require.NotNil(t, regenerated.RegeneratedAt)

	// Old secret no longer resolves, new one carries the usage state.
	_, err = store.GetActiveByToken(ctx, oldSecret)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.GetActiveByToken(ctx, regenerated.Token)
	require.NoError(t, err)
	assert.Equal(t, 3, got.MaxDownloads-got.DownloadCount)
}

func TestIssuer_RegenerateUnknownToken(t *testing.T) {
	issuer, _ := newTestIssuer(t)

	_, err := issuer.Regenerate(context.Background(), "missing", "whatever")
	assert.ErrorIs(t, err, ErrNotFound)
}
