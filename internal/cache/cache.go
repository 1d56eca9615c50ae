// Package cache defines the byte-level cache backends datasets are stored in.
package cache

import (
	"context"
	"time"
)

// Interface is a key-value cache. Get reports a miss as (nil, false, nil);
// a non-nil error means the backend itself failed. ttl<=0 means no expiry.
type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
