package redisstore

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// sub-result lookups for one request: a handful of keys, up to the decomposer cap
func seedSubKeys(b *testing.B, n int) (*Client, []string) {
	b.Helper()
	mr := miniredis.RunT(b)
	rc, err := New(context.Background(), mr.Addr())
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	b.Cleanup(func() { _ = rc.Close() })

	body := []byte(`{"type":"FeatureCollection","features":[` +
		strings.Repeat(`{"type":"Feature","geometry":{"type":"Point","coordinates":[18.07,59.33]},"properties":{"name":"x"}},`, 19) +
		`{"type":"Feature","geometry":{"type":"Point","coordinates":[18.07,59.33]},"properties":{"name":"x"}}]}`)
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "poi:sub:" + strconv.Itoa(i)
		if err := rc.Set(context.Background(), keys[i], body, time.Hour); err != nil {
			b.Fatalf("Set: %v", err)
		}
	}
	return rc, keys
}

func BenchmarkSubKeyReads(b *testing.B) {
	for _, n := range []int{4, 32} {
		b.Run("MGET/"+strconv.Itoa(n), func(b *testing.B) {
			rc, keys := seedSubKeys(b, n)
			ctx := context.Background()
			b.ReportAllocs()
			for b.Loop() {
				if _, err := rc.MGet(ctx, keys); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run("GET/"+strconv.Itoa(n), func(b *testing.B) {
			rc, keys := seedSubKeys(b, n)
			ctx := context.Background()
			b.ReportAllocs()
			for b.Loop() {
				for _, k := range keys {
					if _, _, err := rc.Get(ctx, k); err != nil {
						b.Fatal(err)
					}
				}
			}
		})
	}
}
