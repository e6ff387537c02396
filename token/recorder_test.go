package token

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) (*Recorder, *InmemStore, *Metrics) {
	t.Helper()
	store := NewInmemStore()
	t.Cleanup(func() { store.Close() })
	metrics := &Metrics{}
	return NewRecorder(store, testLogger(), metrics), store, metrics
}

func testEvent() *DownloadEvent {
	return &DownloadEvent{
		FileKey:     "downloads/prod-1/archive.zip",
		UserIP:      "203.0.113.10",
		UserAgent:   uaChromeWindows,
		FileSize:    1 << 20,
		ContentType: "application/zip",
	}
}

func TestRecorder_Record(t *testing.T) {
	r, store, metrics := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testToken("tok-1", "dlt_abc")))

	result, err := r.Record(ctx, "tok-1", testEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Token.DownloadCount)
	assert.Equal(t, 2, result.RemainingDownloads)
	assert.False(t, result.Deactivated)

	activities, err := store.ListActivities(ctx, "tok-1", 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.True(t, activities[0].Success)
	assert.Equal(t, "downloads/prod-1/archive.zip", activities[0].FileKey)

	assert.Equal(t, int64(1), metrics.GetSnapshot()["downloads_recorded"])
}

func TestRecorder_FinalDownloadClosesToken(t *testing.T) {
	r, store, _ := newTestRecorder(t)
	ctx := context.Background()

	tok := testToken("tok-1", "dlt_abc")
	tok.MaxDownloads = 2
	tok.DownloadCount = 1
	require.NoError(t, store.Create(ctx, tok))

	result, err := r.Record(ctx, "tok-1", testEvent())
	require.NoError(t, err)
	assert.Equal(t, 0, result.RemainingDownloads)
	assert.True(t, result.Deactivated)

	got, err := store.GetByID(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, got.Status)
	assert.Equal(t, ReasonDownloadCompleted, got.DeactivationReason)
}

func TestRecorder_SingleUseClosesAfterFirstDownload(t *testing.T) {
	r, store, _ := newTestRecorder(t)
	ctx := context.Background()

	tok := testToken("tok-1", "dlt_abc")
	tok.SingleUse = true
	tok.MaxDownloads = 1
	require.NoError(t, store.Create(ctx, tok))

	result, err := r.Record(ctx, "tok-1", testEvent())
	require.NoError(t, err)
	assert.True(t, result.Deactivated)

	_, err = r.Record(ctx, "tok-1", testEvent())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecorder_ExhaustedTokenRejected(t *testing.T) {
	r, store, _ := newTestRecorder(t)
	ctx := context.Background()

	tok := testToken("tok-1", "dlt_abc")
	tok.MaxDownloads = 1
	tok.DownloadCount = 1
	require.NoError(t, store.Create(ctx, tok))

	_, err := r.Record(ctx, "tok-1", testEvent())
	assert.ErrorIs(t, err, ErrLimitReached)

	// The refusal still leaves an activity row behind.
	activities, err := store.ListActivities(ctx, "tok-1", 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.False(t, activities[0].Success)
	assert.Equal(t, ErrLimitReached.Error(), activities[0].Error)
}

func TestRecorder_DeactivateFailureStillAppendsActivity(t *testing.T) {
	inner := NewInmemStore()
	t.Cleanup(func() { inner.Close() })
	store := &deactivateRefusingStore{Store: inner}
	r := NewRecorder(store, testLogger(), &Metrics{})
	ctx := context.Background()

	tok := testToken("tok-1", "dlt_abc")
	tok.MaxDownloads = 1
	require.NoError(t, inner.Create(ctx, tok))

	_, err := r.Record(ctx, "tok-1", testEvent())
	require.Error(t, err)

	// The quota was spent, so the row records a completed transfer
	// even though closing the token failed.
	activities, err := inner.ListActivities(ctx, "tok-1", 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.True(t, activities[0].Success)

	got, err := inner.GetByID(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.DownloadCount)
}

func TestRecorder_ConcurrentRecordsNeverOvershoot(t *testing.T) {
	r, store, _ := newTestRecorder(t)
	ctx := context.Background()

	tok := testToken("tok-1", "dlt_abc")
	tok.MaxDownloads = 3
	require.NoError(t, store.Create(ctx, tok))

	const callers = 10
	var mu sync.Mutex
	succeeded := 0
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Record(ctx, "tok-1", testEvent()); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)

	got, err := store.GetByID(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.DownloadCount)
	assert.Equal(t, StatusInactive, got.Status)
	assert.Equal(t, ReasonDownloadCompleted, got.DeactivationReason)
}

func TestRecorder_RecordFailureSpendsNoQuota(t *testing.T) {
	r, store, metrics := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testToken("tok-1", "dlt_abc")))

	r.RecordFailure(ctx, "tok-1", testEvent(), "connection reset during transfer")

	got, err := store.GetByID(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.DownloadCount)
	assert.Equal(t, StatusActive, got.Status)

	activities, err := store.ListActivities(ctx, "tok-1", 10)
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.False(t, activities[0].Success)
	assert.Equal(t, "connection reset during transfer", activities[0].Error)

	assert.Equal(t, int64(1), metrics.GetSnapshot()["downloads_failed"])
}
