package main

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPercentile(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if got := percentile(vals, 50); got != 3 {
		t.Fatalf("p50=%v", got)
	}
	if got := percentile(vals, 100); got != 5 {
		t.Fatalf("p100=%v", got)
	}
	if got := percentile(vals, 25); got != 2 {
		t.Fatalf("p25=%v", got)
	}
	if !math.IsNaN(percentile(nil, 50)) {
		t.Fatal("empty input should be NaN")
	}
}

func TestMakeWorkload(t *testing.T) {
	w := makeWorkload(4, []string{"cafe", "bar"}, 500, rand.New(rand.NewSource(1)))
	if len(w) != 8 {
		t.Fatalf("len=%d want 8", len(w))
	}
	if w[0].BooleanQuery != "cafe" || w[1].BooleanQuery != "bar" || w[0].Lat != w[1].Lat {
		t.Fatalf("queries should be crossed per area: %+v", w[:2])
	}
}

func TestDo_ReadsCacheHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Cache", "HIT")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s := do(context.Background(), srv.Client(), srv.URL, []byte(`{}`))
	if s.err || !s.hit || s.status != http.StatusOK {
		t.Fatalf("unexpected sample %+v", s)
	}
}
