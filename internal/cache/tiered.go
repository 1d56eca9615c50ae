package cache

import (
	"context"
	"fmt"
	"time"
)

// Tiered reads through a fast L1 into a durable L2. Writes go to L2 first;
// an L1 write failure after a successful L2 write is not reported.
type Tiered struct {
	l1    Interface
	l2    Interface
	l1TTL time.Duration
}

var _ Interface = (*Tiered)(nil)

func NewTiered(l1, l2 Interface, l1TTL time.Duration) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1TTL: l1TTL}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := t.l1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}
	v, ok, err := t.l2.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("tiered l2 get: %w", err)
	}
	if ok {
		_ = t.l1.Set(ctx, key, v, t.l1TTL)
	}
	return v, ok, nil
}

func (t *Tiered) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out, err := t.l1.MGet(ctx, keys)
	if err != nil || out == nil {
		out = map[string][]byte{}
	}
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	fromL2, err := t.l2.MGet(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("tiered l2 mget: %w", err)
	}
	for k, v := range fromL2 {
		out[k] = v
		_ = t.l1.Set(ctx, k, v, t.l1TTL)
	}
	return out, nil
}

func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := t.l2.Set(ctx, key, val, ttl); err != nil {
		return fmt.Errorf("tiered l2 set: %w", err)
	}
	l1TTL := t.l1TTL
	if ttl > 0 && (l1TTL <= 0 || ttl < l1TTL) {
		l1TTL = ttl
	}
	_ = t.l1.Set(ctx, key, val, l1TTL)
	return nil
}

func (t *Tiered) Del(ctx context.Context, keys ...string) error {
	_ = t.l1.Del(ctx, keys...)
	if err := t.l2.Del(ctx, keys...); err != nil {
		return fmt.Errorf("tiered l2 del: %w", err)
	}
	return nil
}
