package kv

import (
	"context"
	"time"
)

// Store port: single-key get/set with TTL plus an atomic counter.
// Last-writer-wins; no transactions, no conditional writes.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes the value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Increment adds n to a numeric counter key and returns the new value.
	Increment(ctx context.Context, key string, n int64) (int64, error)
}
