// Package cache provides a TTL cache for upstream access tokens.
// The GigaChat adapter exchanges a long-lived authorization key for a
// short-lived access token; caching the token avoids an OAuth round
// trip per request. Local and Redis backends are provided; Redis suits
// multi-instance deployments where every process would otherwise hold
// its own token.
package cache

import (
	"context"
	"time"
)

// TokenCache stores access tokens keyed by an opaque cache key until
// their upstream expiry. Implementations must be safe for concurrent use.
type TokenCache interface {
	// Get returns the cached token for key, or ok=false when absent
	// or expired.
	Get(ctx context.Context, key string) (token string, ok bool, err error)

	// Set stores token under key until expiresAt.
	Set(ctx context.Context, key, token string, expiresAt time.Time) error

	// Delete drops the token for key, if any. Used when an upstream
	// rejects a token the cache still considers valid.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
