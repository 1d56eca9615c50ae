package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestProvider_RegistersStandardCollectors_AndBuildInfo(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test", Revision: "r", Branch: "b", BuildDate: "now"}})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)
	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	body := scrape(t, p.Handler())
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, "process_cpu_seconds_total") && !strings.Contains(body, "process_start_time_seconds") {
		t.Fatalf("expected process_* metrics in payload; got:\n%s", body)
	}
	if !strings.Contains(body, `poi_build_info{branch="b",build_date="now",revision="r",version="test"} 1`) {
		t.Fatalf("expected poi_build_info in payload; got:\n%s", body)
	}
}

func TestProvider_GaugeFunc(t *testing.T) {
	p := Init(Config{})
	n := 0.0
	p.GaugeFunc("cache_l1_entries", "entries", func() float64 { return n })
	n = 7
	if body := scrape(t, p.Handler()); !strings.Contains(body, "cache_l1_entries 7") {
		t.Fatalf("gauge func not sampled at scrape time:\n%s", body)
	}
}

func TestProvider_ServerDisabled(t *testing.T) {
	if s := Init(Config{Addr: ":0"}).Server(); s != nil {
		t.Fatal("disabled metrics must not produce a server")
	}
	s := Init(Config{Enabled: true, Addr: ":9999", Path: "/m"}).Server()
	if s == nil || s.Addr != ":9999" {
		t.Fatalf("unexpected server %+v", s)
	}
	rr := httptest.NewRecorder()
	s.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/m", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics path status=%d", rr.Code)
	}
}
