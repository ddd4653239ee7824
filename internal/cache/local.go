package cache

import (
	"context"
	"sync"
	"time"
)

// expirySlack is subtracted from every expiry so a token is never handed
// out moments before the upstream stops honoring it.
const expirySlack = 30 * time.Second

type localEntry struct {
	token     string
	expiresAt time.Time
}

// LocalCache is an in-process TokenCache. Suitable for single-instance
// deployments.
type LocalCache struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

// NewLocalCache creates an empty in-process token cache.
func NewLocalCache() *LocalCache {
	return &LocalCache{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

// Get returns the token for key when present and not yet expired.
func (c *LocalCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false, nil
	}
	if !c.now().Before(e.expiresAt.Add(-expirySlack)) {
		delete(c.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

// Set stores token under key until expiresAt.
func (c *LocalCache) Set(_ context.Context, key, token string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{token: token, expiresAt: expiresAt}
	return nil
}

// Delete drops the token for key.
func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Close is a no-op for the local cache.
func (c *LocalCache) Close() error { return nil }
