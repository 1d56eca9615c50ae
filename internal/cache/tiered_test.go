package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/poi-cache/internal/cache"
	"github.com/mohammed-shakir/poi-cache/internal/cache/memstore"
	"github.com/mohammed-shakir/poi-cache/internal/cache/redisstore"
)

func newTiered(t *testing.T) (*cache.Tiered, *memstore.Store, *redisstore.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	l1, err := memstore.New(16)
	if err != nil {
		t.Fatalf("memstore: %v", err)
	}
	return cache.NewTiered(l1, rc, time.Minute), l1, rc
}

func TestTiered_WriteThroughAndReadFill(t *testing.T) {
	tc, l1, rc := newTiered(t)
	ctx := context.Background()

	if err := tc.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := rc.Get(ctx, "k"); !ok {
		t.Fatalf("L2 missing written key")
	}

	// populate L2 only, read through tiered, expect L1 filled
	if err := rc.Set(ctx, "only-l2", []byte("x"), 0); err != nil {
		t.Fatalf("seed l2: %v", err)
	}
	v, ok, err := tc.Get(ctx, "only-l2")
	if err != nil || !ok || string(v) != "x" {
		t.Fatalf("Get only-l2 = %q ok=%v err=%v", v, ok, err)
	}
	if _, ok, _ := l1.Get(ctx, "only-l2"); !ok {
		t.Fatalf("L1 not filled after L2 hit")
	}
}

func TestTiered_MGetMixesLevels(t *testing.T) {
	tc, l1, rc := newTiered(t)
	ctx := context.Background()
	_ = l1.Set(ctx, "a", []byte("1"), 0)
	_ = rc.Set(ctx, "b", []byte("2"), 0)

	got, err := tc.MGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != "1" || string(got["b"]) != "2" {
		t.Fatalf("unexpected: %v", got)
	}
}

func TestTiered_DelRemovesBoth(t *testing.T) {
	tc, l1, rc := newTiered(t)
	ctx := context.Background()
	_ = tc.Set(ctx, "k", []byte("v"), 0)
	if err := tc.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, ok, _ := l1.Get(ctx, "k"); ok {
		t.Fatalf("L1 still has k")
	}
	if _, ok, _ := rc.Get(ctx, "k"); ok {
		t.Fatalf("L2 still has k")
	}
}
