// Package idempotency deduplicates payment submissions by client-supplied
// idempotency key, so a retried submit does not open two payment requests.
//
// Primary backend: Redis SETNX with TTL. Fallback: Postgres
// INSERT ... ON CONFLICT. If neither is configured, an in-memory store is
// used (development only).
package idempotency

import (
	"context"
	"errors"
	"time"
)

// Store checks whether a key has already been seen and marks it.
type Store interface {
	// Check returns true if key was already seen. If not seen, it
	// atomically marks it.
	Check(ctx context.Context, key string) (duplicate bool, err error)
}

// NewStore creates the best available idempotency store:
// Redis > Postgres > in-memory (dev fallback).
// When isProd is true the in-memory fallback is not allowed and the
// function returns an error instead.
func NewStore(redisDSN, databaseURL string, ttl time.Duration, isProd bool) (Store, error) {
	if redisDSN != "" {
		return newRedisStore(redisDSN, ttl), nil
	}
	if databaseURL != "" {
		return newPostgresStore(databaseURL), nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_DSN or DATABASE_URL for idempotency; in-memory store is not allowed")
	}
	return newMemoryStore(), nil
}
