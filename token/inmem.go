package token

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Verify interface is satisfied
var _ Store = (*InmemStore)(nil)

// InmemStore is an in-memory only Store. It is useful for testing and
// development situations where the data is not expected to be durable.
// All operations execute under a single lock, which trivially gives the
// atomicity the Store contract requires.
type InmemStore struct {
	sync.RWMutex
	byID       map[string]*DownloadToken
	byToken    map[string]string // secret string -> id
	activities map[string][]*DownloadActivity
	closed     bool
}

// NewInmemStore creates a new in-memory token store.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		byID:       make(map[string]*DownloadToken),
		byToken:    make(map[string]string),
		activities: make(map[string][]*DownloadActivity),
	}
}

func (s *InmemStore) Create(ctx context.Context, t *DownloadToken) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	clone := t.Clone()
	s.byID[clone.ID] = clone
	s.byToken[clone.Token] = clone.ID
	return nil
}

func (s *InmemStore) GetByID(ctx context.Context, id string) (*DownloadToken, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InmemStore) GetActiveByToken(ctx context.Context, tokenString string) (*DownloadToken, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	id, ok := s.byToken[tokenString]
	if !ok {
		return nil, ErrNotFound
	}
	t := s.byID[id]
	if t == nil || t.Status != StatusActive {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InmemStore) IncrementDownloadCount(ctx context.Context, id string) (*DownloadToken, error) {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != StatusActive {
		return nil, ErrNotFound
	}
	if t.DownloadCount >= t.MaxDownloads {
		return nil, ErrLimitReached
	}
	t.DownloadCount++
	return t.Clone(), nil
}

func (s *InmemStore) Deactivate(ctx context.Context, id string, reason DeactivationReason, at time.Time) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	// Already inactive: successful no-op, the first reason wins.
	if t.Status == StatusInactive {
		return nil
	}
	t.Status = StatusInactive
	t.DeactivationReason = reason
	deactivatedAt := at
	t.DeactivatedAt = &deactivatedAt
	return nil
}

func (s *InmemStore) ReplaceSecret(ctx context.Context, id, newToken, reason string, at time.Time) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	delete(s.byToken, t.Token)
	t.Token = newToken
	regeneratedAt := at
	t.RegeneratedAt = &regeneratedAt
	t.RegenerationReason = reason
	s.byToken[newToken] = id
	return nil
}

func (s *InmemStore) AppendActivity(ctx context.Context, a *DownloadActivity) error {
	s.Lock()
	defer s.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	clone := *a
	s.activities[a.TokenID] = append(s.activities[a.TokenID], &clone)
	return nil
}

func (s *InmemStore) ListActivities(ctx context.Context, tokenID string, limit int) ([]*DownloadActivity, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows := s.activities[tokenID]
	out := make([]*DownloadActivity, 0, len(rows))
	for _, a := range rows {
		clone := *a
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DownloadedAt.After(out[j].DownloadedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InmemStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*DownloadToken, error) {
	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []*DownloadToken
	for _, t := range s.byID {
		if t.Status == StatusActive && t.ExpiresAt.Before(now) {
			out = append(out, t.Clone())
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *InmemStore) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	return nil
}
