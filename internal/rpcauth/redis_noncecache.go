package rpcauth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonceCache stores seen nonces in Redis with a TTL equal to their
// remaining validity, so replay protection holds across every host or
// enclave replica rather than only within one process.
type RedisNonceCache struct {
	redis     *redis.Client
	keyPrefix string
}

// NewRedisNonceCache creates a nonce cache backed by the given Redis
// client. keyPrefix namespaces keys, e.g. "rpc:nonce:host:" or
// "rpc:nonce:enclave:".
func NewRedisNonceCache(rdb *redis.Client, keyPrefix string) *RedisNonceCache {
	return &RedisNonceCache{redis: rdb, keyPrefix: keyPrefix}
}

// CheckAndRecord atomically sets the nonce key only if absent (SETNX
// semantics via SetNX), with a TTL derived from expiresAt. If the key
// already exists, the nonce was already used.
func (c *RedisNonceCache) CheckAndRecord(ctx context.Context, nonce string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	key := c.keyPrefix + nonce
	ok, err := c.redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("checking nonce in redis: %w", err)
	}
	if !ok {
		return ErrReplayDetected
	}
	return nil
}
