// Package baiducloud handles the vendor credential exchange shared by the
// buffered synthesis and chunked recognition clients. The access token is
// owned exclusively by the TokenCache and never leaves the package except as
// an opaque string attached to an outgoing request.
package baiducloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/abyssvoice/abyss-core/core/faults"
)

const (
	// maxTokenLifetime caps the vendor-reported expiry. The vendor issues
	// 30-day tokens; capping at 29 days absorbs clock drift on their side.
	maxTokenLifetime = 29 * 24 * time.Hour

	// defaultSafetyMargin is subtracted from the expiry when deciding whether
	// a cached token is still usable.
	defaultSafetyMargin = 24 * time.Hour
)

type accessToken struct {
	value     string
	expiresAt time.Time
}

// TokenCache acquires and caches a bearer token from the credential endpoint.
// It is safe for concurrent use.
type TokenCache struct {
	endpoint     string
	safetyMargin time.Duration
	httpClient   *http.Client
	now          func() time.Time

	mu    sync.Mutex
	token *accessToken
}

type TokenCacheOption func(*TokenCache)

// WithSafetyMargin overrides how long before expiry a token is refreshed.
func WithSafetyMargin(margin time.Duration) TokenCacheOption {
	return func(c *TokenCache) {
		c.safetyMargin = margin
	}
}

// WithHTTPClient overrides the HTTP client used for the exchange.
func WithHTTPClient(client *http.Client) TokenCacheOption {
	return func(c *TokenCache) {
		c.httpClient = client
	}
}

// WithClock overrides the time source. Tests use this to drive expiry.
func WithClock(now func() time.Time) TokenCacheOption {
	return func(c *TokenCache) {
		c.now = now
	}
}

func NewTokenCache(endpoint string, opts ...TokenCacheOption) *TokenCache {
	cache := &TokenCache{
		endpoint:     endpoint,
		safetyMargin: defaultSafetyMargin,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   10 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Token returns a usable bearer token, refreshing it when the cached one is
// missing or inside the safety margin of its expiry.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != nil && now.Before(c.token.expiresAt.Add(-c.safetyMargin)) {
		return c.token.value, nil
	}

	token, err := c.exchange(ctx, now)
	if err != nil {
		return "", err
	}

	c.token = token
	return token.value, nil
}

// Invalidate drops the cached token so the next call re-exchanges. Used when
// the vendor rejects a token before its reported expiry.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
}

func (c *TokenCache) exchange(ctx context.Context, now time.Time) (*accessToken, error) {
	ctx, span := tracer.Start(ctx, "exchange access token")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, nil)
	if err != nil {
		return nil, faults.New(faults.TokenAcquisitionFailed, err, "failed to build token request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.New(faults.TokenAcquisitionFailed, err, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, faults.Newf(faults.TokenAcquisitionFailed, nil,
			"token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, faults.New(faults.TokenAcquisitionFailed, err, "failed to decode token response")
	}
	if body.AccessToken == "" {
		return nil, faults.New(faults.TokenAcquisitionFailed, nil, "token response missing access_token")
	}

	lifetime := time.Duration(body.ExpiresIn) * time.Second
	if lifetime <= 0 || lifetime > maxTokenLifetime {
		lifetime = maxTokenLifetime
	}

	logger.DebugContext(ctx, "exchanged vendor access token",
		"expires_in", fmt.Sprintf("%v", lifetime))
	return &accessToken{value: body.AccessToken, expiresAt: now.Add(lifetime)}, nil
}
