// Package kv defines the persistent key-value capability used for user
// preferences, alert baselines, and cached lookups. Failures are expected
// to be non-fatal: callers fall back to defaults when a key is missing or
// the store is unavailable.
package kv

import (
	"context"
	"time"
)

// KV is the interface for a persistent key-value store. Keys are strings,
// values are JSON-serializable. Get on a missing or expired key returns an
// error wrapping sql.ErrNoRows.
type KV interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}
