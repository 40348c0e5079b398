package sap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/michal-majer/s4kit/internal/apperr"
)

// expiryMargin is how long before the provider-reported expiry a cached
// token is already considered stale.
const expiryMargin = 60 * time.Second

// defaultTokenTTL applies when the identity provider omits expires_in.
const defaultTokenTTL = 30 * time.Minute

// Fingerprint derives the cache key for an OAuth2 configuration. Equivalent
// configs share a fingerprint regardless of which override level produced
// them, so a token acquired for one instance service is reused by another
// pointing at the same identity provider and client.
func Fingerprint(cfg OAuth2Auth) string {
	sum := sha256.Sum256([]byte(cfg.TokenURL + "|" + cfg.ClientID + "|" + cfg.Scope))
	return hex.EncodeToString(sum[:])
}

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// TokenCache acquires and caches OAuth2 client-credentials bearer tokens.
// Concurrent callers for the same fingerprint share a single in-flight
// fetch. The cache is process-local and never persisted: across processes,
// duplicate fetches are acceptable because tokens are idempotent to acquire.
type TokenCache struct {
	client *http.Client

	mu      sync.RWMutex
	entries map[string]tokenEntry
	group   singleflight.Group
}

// NewTokenCache creates a TokenCache whose outbound token requests are
// bounded by the given timeout.
func NewTokenCache(timeout time.Duration) *TokenCache {
	return &TokenCache{
		client:  &http.Client{Timeout: timeout},
		entries: make(map[string]tokenEntry),
	}
}

// GetToken returns a valid bearer token for the config, fetching one from
// the identity provider only when no fresh cached entry exists. At most one
// outbound token request is in flight per fingerprint.
func (c *TokenCache) GetToken(ctx context.Context, cfg OAuth2Auth) (string, error) {
	fp := Fingerprint(cfg)

	if token, ok := c.cached(fp); ok {
		return token, nil
	}

	result, err, _ := c.group.Do(fp, func() (interface{}, error) {
		// Re-check under the flight: a racing caller may have populated the
		// cache between the miss and the flight starting.
		if token, ok := c.cached(fp); ok {
			return token, nil
		}
		// The flight is shared by every waiter on the fingerprint, so it
		// must not die with the caller whose context happened to start it.
		// The client timeout still bounds the request.
		return c.fetch(context.WithoutCancel(ctx), fp, cfg)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops the cached token for a fingerprint, forcing the next
// GetToken to fetch fresh. Called after a downstream 401 with a cached token.
func (c *TokenCache) Invalidate(fp string) {
	c.mu.Lock()
	delete(c.entries, fp)
	c.mu.Unlock()
}

func (c *TokenCache) cached(fp string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[fp]
	if !ok || time.Now().After(entry.expiresAt.Add(-expiryMargin)) {
		return "", false
	}
	return entry.token, true
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *TokenCache) fetch(ctx context.Context, fp string, cfg OAuth2Auth) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	if cfg.Scope != "" {
		form.Set("scope", cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.UpstreamAuth(fmt.Sprintf("build token request: %v", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(cfg.ClientID, cfg.ClientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperr.UpstreamAuth(fmt.Sprintf("token request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.UpstreamAuth(fmt.Sprintf("read token response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperr.UpstreamAuth(fmt.Sprintf("identity provider returned %d", resp.StatusCode))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil || tr.AccessToken == "" {
		return "", apperr.UpstreamAuth("identity provider returned no access token")
	}

	ttl := defaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	c.mu.Lock()
	c.entries[fp] = tokenEntry{token: tr.AccessToken, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	return tr.AccessToken, nil
}
