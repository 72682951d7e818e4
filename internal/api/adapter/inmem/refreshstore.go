package inmem

import (
	"context"
	"sync"
	"time"

	"parss/internal/api"
	"parss/internal/domain"
)

// RefreshStore keeps refresh records in process memory. Records are lost on
// restart; use the Redis store when sessions must survive deploys.
type RefreshStore struct {
	now func() time.Time

	mu      sync.Mutex
	records map[string]api.RefreshRecord
}

// NewRefreshStore creates an empty store. clock is injectable for testing.
func NewRefreshStore(clock func() time.Time) *RefreshStore {
	return &RefreshStore{now: clock, records: make(map[string]api.RefreshRecord)}
}

func (s *RefreshStore) Save(_ context.Context, key string, rec api.RefreshRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	return nil
}

func (s *RefreshStore) Consume(_ context.Context, key string) (api.RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return api.RefreshRecord{}, domain.ErrNotFound
	}
	delete(s.records, key)
	if !s.now().Before(rec.ExpiresAt) {
		return api.RefreshRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s *RefreshStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Cleanup drops expired records.
func (s *RefreshStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, key)
		}
	}
}

// Len returns the number of stored records (for testing).
func (s *RefreshStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// RunCleanup drops expired records every interval until ctx is done.
func (s *RefreshStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
