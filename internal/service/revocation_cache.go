package service

import (
	"context"
	"sync"
	"time"
)

// RevocationMarkerStore holds short-lived "this access token was revoked"
// markers. A present marker is authoritative; absence says nothing (the
// store of record is consulted on a miss). Valid tokens are never cached,
// so a marker can never mask a racing revocation.
type RevocationMarkerStore interface {
	IsMarked(ctx context.Context, accessToken string) (bool, error)
	Mark(ctx context.Context, accessToken string, ttl time.Duration) error
}

type NoopRevocationMarkerStore struct{}

func NewNoopRevocationMarkerStore() *NoopRevocationMarkerStore {
	return &NoopRevocationMarkerStore{}
}

func (s *NoopRevocationMarkerStore) IsMarked(context.Context, string) (bool, error) {
	return false, nil
}

func (s *NoopRevocationMarkerStore) Mark(context.Context, string, time.Duration) error {
	return nil
}

type InMemoryRevocationMarkerStore struct {
	mu      sync.RWMutex
	markers map[string]time.Time
}

func NewInMemoryRevocationMarkerStore() *InMemoryRevocationMarkerStore {
	return &InMemoryRevocationMarkerStore{markers: make(map[string]time.Time)}
}

func (s *InMemoryRevocationMarkerStore) IsMarked(_ context.Context, accessToken string) (bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	expiresAt, ok := s.markers[accessToken]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if now.After(expiresAt) {
		s.mu.Lock()
		delete(s.markers, accessToken)
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (s *InMemoryRevocationMarkerStore) Mark(_ context.Context, accessToken string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[accessToken] = time.Now().UTC().Add(ttl)
	return nil
}
