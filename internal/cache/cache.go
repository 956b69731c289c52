package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a best-effort string KV. Callers fall back to the database on
// any error; a cache outage must never fail a request.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores the value only if the key is absent. Returns true when
	// this call claimed the key.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
