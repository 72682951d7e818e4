package inmem

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultDenylistSize = 100_000

// Denylist remembers revoked access token IDs. Entries expire after ttl,
// which should be at least the access token lifetime.
type Denylist struct {
	now     func() time.Time
	revoked *expirable.LRU[string, time.Time]
}

// NewDenylist creates a denylist holding up to size entries. size <= 0 selects
// a default.
func NewDenylist(size int, ttl time.Duration, clock func() time.Time) *Denylist {
	if size <= 0 {
		size = defaultDenylistSize
	}
	return &Denylist{
		now:     clock,
		revoked: expirable.NewLRU[string, time.Time](size, nil, ttl),
	}
}

func (d *Denylist) Revoke(_ context.Context, jti string, until time.Time) error {
	if !d.now().Before(until) {
		return nil
	}
	d.revoked.Add(jti, until)
	return nil
}

func (d *Denylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	until, ok := d.revoked.Get(jti)
	if !ok {
		return false, nil
	}
	return d.now().Before(until), nil
}
