// Package jwks resolves token verification keys published by a remote issuer.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"parss/internal/api"
	"parss/internal/platform/telemetry"
)

const minModulusBits = 2048

// Client caches the RS256 signing keys of one JWKS endpoint.
type Client struct {
	endpoint   string
	minRefresh time.Duration
	httpClient *http.Client
	metrics    *telemetry.Metrics
	flight     singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewClient returns a client that refetches the key set at most once per
// minRefresh. metrics may be nil.
func NewClient(endpoint string, minRefresh time.Duration, metrics *telemetry.Metrics) *Client {
	return &Client{
		endpoint:   endpoint,
		minRefresh: minRefresh,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		metrics:    metrics,
		keys:       map[string]*rsa.PublicKey{},
	}
}

// GetKey returns the key for kid. A miss refetches the set so a rotated
// issuer key is found; concurrent misses share a single request.
func (c *Client) GetKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.lookup(kid); ok {
		return key, nil
	}

	ch := c.flight.DoChan("jwks", func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("fetching key %q: %w", kid, res.Err)
		}
	}

	key, ok := c.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("key ID %q not published by %s", kid, c.endpoint)
	}
	return key, nil
}

func (c *Client) lookup(kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	return key, ok
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.RLock()
	fresh := !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.minRefresh
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	keys, err := c.fetch(ctx)
	if err != nil {
		c.metrics.RecordJWKSRefresh(ctx, telemetry.ResultFailure)
		return err
	}
	c.metrics.RecordJWKSRefresh(ctx, telemetry.ResultSuccess)

	c.mu.Lock()
	c.keys = keys
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

func (c *Client) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting JWKS: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint responded %s", resp.Status)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		pub, err := k.rsaKey()
		if err != nil {
			slog.Debug("ignoring JWKS entry", "kid", k.Kid, "reason", err)
			continue
		}
		keys[k.Kid] = pub
	}
	return keys, nil
}

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

var errUnusable = errors.New("not an RS256 signing key")

func (k jwk) rsaKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" || (k.Alg != "" && k.Alg != "RS256") || (k.Use != "" && k.Use != "sig") || k.Kid == "" {
		return nil, errUnusable
	}
	n, err := decodeBigInt(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	if n.BitLen() < minModulusBits {
		return nil, fmt.Errorf("modulus has %d bits, need %d", n.BitLen(), minModulusBits)
	}
	e, err := decodeBigInt(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("exponent %s out of range", e)
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func decodeBigInt(s string) (*big.Int, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

var _ api.KeySource = (*Client)(nil)
