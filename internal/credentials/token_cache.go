package credentials

import (
	"sync"
	"time"
)

// tokenBuffer is subtracted from every TTL so tokens are renewed before the
// issuer expires them.
const tokenBuffer = 5 * time.Second

// TokenCache holds one access token for a secret store, in memory only.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewTokenCache creates an empty token cache.
func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get returns the cached token if it has not expired.
func (c *TokenCache) Get() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" || !c.now().Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// Set stores token for ttl minus a small buffer.
func (c *TokenCache) Set(token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl > tokenBuffer {
		ttl -= tokenBuffer
	}
	c.token = token
	c.expiresAt = c.now().Add(ttl)
}

// Clear removes the cached token
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = ""
	c.expiresAt = time.Time{}
}

// TTL returns the remaining lifetime, or 0 when nothing valid is cached.
func (c *TokenCache) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return 0
	}
	if remaining := c.expiresAt.Sub(c.now()); remaining > 0 {
		return remaining
	}
	return 0
}
