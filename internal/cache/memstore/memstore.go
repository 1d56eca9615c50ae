// Package memstore is an in-process LRU cache backend.
package memstore

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/poi-cache/internal/cache"
)

type entry struct {
	val     []byte
	expires time.Time // zero means no expiry
}

type Store struct {
	lru *lru.Cache[string, entry]
	now func() time.Time
}

var _ cache.Interface = (*Store)(nil)

func New(size int) (*Store, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("memstore lru: %w", err)
	}
	return &Store{lru: c, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("memstore get: %w", err)
	}
	v, ok := s.lookup(key)
	return v, ok, nil
}

func (s *Store) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memstore mget: %w", err)
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := s.lookup(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore set: %w", err)
	}
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
	}
	s.lru.Add(key, e)
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.lru.Remove(k)
	}
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }

func (s *Store) lookup(key string) ([]byte, bool) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		s.lru.Remove(key)
		return nil, false
	}
	return e.val, true
}
