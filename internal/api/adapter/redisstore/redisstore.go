// Package redisstore keeps refresh tokens and revoked access token IDs in
// Redis so sessions survive restarts and are shared across replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"parss/internal/api"
	"parss/internal/domain"
)

const (
	refreshPrefix = "parss:refresh:"
	denyPrefix    = "parss:deny:"
)

// Connect creates a Redis client and verifies connectivity.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return client, nil
}

// RefreshStore implements api.RefreshStore on Redis.
type RefreshStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRefreshStore wraps client.
func NewRefreshStore(client redis.Cmdable) *RefreshStore {
	return &RefreshStore{client: client, now: time.Now}
}

func (s *RefreshStore) Save(ctx context.Context, key string, rec api.RefreshRecord) error {
	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redisstore: encode refresh record: %w", err)
	}
	if err := s.client.Set(ctx, refreshPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: save refresh record: %w", err)
	}
	return nil
}

// Consume uses GETDEL so concurrent callers observe the record at most once.
func (s *RefreshStore) Consume(ctx context.Context, key string) (api.RefreshRecord, error) {
	payload, err := s.client.GetDel(ctx, refreshPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return api.RefreshRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return api.RefreshRecord{}, fmt.Errorf("redisstore: consume refresh record: %w", err)
	}
	var rec api.RefreshRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return api.RefreshRecord{}, fmt.Errorf("redisstore: decode refresh record: %w", err)
	}
	return rec, nil
}

func (s *RefreshStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, refreshPrefix+key).Err(); err != nil {
		return fmt.Errorf("redisstore: delete refresh record: %w", err)
	}
	return nil
}

// Denylist implements api.Denylist on Redis. Entries expire with the token.
type Denylist struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewDenylist wraps client.
func NewDenylist(client redis.Cmdable) *Denylist {
	return &Denylist{client: client, now: time.Now}
}

func (d *Denylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, denyPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: revoke %s: %w", jti, err)
	}
	return nil
}

func (d *Denylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, denyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: check revocation: %w", err)
	}
	return n > 0, nil
}

var (
	_ api.RefreshStore = (*RefreshStore)(nil)
	_ api.Denylist     = (*Denylist)(nil)
)
