package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"parss/internal/domain"
)

// DefaultRefreshInterval renews 30-minute access tokens with headroom.
const DefaultRefreshInterval = 25 * time.Minute

// Refresher renews the session's credential on a fixed interval.
type Refresher struct {
	client   *Client
	interval time.Duration
}

// NewRefresher creates a refresher. A non-positive interval selects
// DefaultRefreshInterval.
func NewRefresher(c *Client, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{client: c, interval: interval}
}

// Run refreshes on every tick while the session is authenticated and returns
// when ctx is done. Ticks that find no session are skipped.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if !r.client.Session().State().Authenticated() {
		return
	}
	err := r.client.Refresh(ctx)
	switch {
	case err == nil:
		slog.Debug("credential refreshed")
	case errors.Is(err, ErrSessionChanged), errors.Is(err, context.Canceled):
	case errors.Is(err, domain.ErrRefreshFailed):
		slog.Warn("refresh rejected, session ended", "error", err)
	default:
		slog.Warn("refresh failed, will retry", "error", err)
	}
}
