package rpcauth

import (
	"context"
	"sync"
	"time"
)

// InProcessNonceCache is a mutex-guarded, process-local nonce replay guard.
// Suitable when the host or enclave runs as a single process (dev-shim
// mode, or a single worker replica). Expired entries are pruned lazily on
// every call, matching the reference ReplayGuard behavior: a full scan of
// the map on each check bounds memory without a separate janitor
// goroutine.
type InProcessNonceCache struct {
	mu     sync.Mutex
	expiry map[string]time.Time
}

// NewInProcessNonceCache creates an empty nonce cache.
func NewInProcessNonceCache() *InProcessNonceCache {
	return &InProcessNonceCache{expiry: make(map[string]time.Time)}
}

// CheckAndRecord prunes expired nonces, rejects a nonce already present,
// and otherwise records it with the later of expiresAt and now.
func (c *InProcessNonceCache) CheckAndRecord(_ context.Context, nonce string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for n, exp := range c.expiry {
		if exp.Before(now) {
			delete(c.expiry, n)
		}
	}

	if _, seen := c.expiry[nonce]; seen {
		return ErrReplayDetected
	}

	if expiresAt.Before(now) {
		expiresAt = now
	}
	c.expiry[nonce] = expiresAt
	return nil
}

// Len reports the number of tracked nonces, for tests and metrics.
func (c *InProcessNonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expiry)
}
