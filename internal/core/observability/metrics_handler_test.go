package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("POST", "/datasets/fetch", 200, 0.001)

	body := scrape(t)
	if !strings.Contains(body, "app_build_info") || !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestPipelineMetrics_Labels(t *testing.T) {
	IncDatasetCache("combined", true)
	IncDatasetCache("sub", false)
	IncSubqueryFetch("failed")
	ObserveResolve("fill", 0.01)
	ObserveCacheOp("get", errors.New("boom"), 0.001)

	body := scrape(t)
	for _, want := range []string{
		`dataset_cache_results_total{level="combined",outcome="hit"}`,
		`dataset_cache_results_total{level="sub",outcome="miss"}`,
		`subquery_fetch_total{outcome="failed"}`,
		`resolve_duration_seconds_bucket{path="fill"`,
		`cache_op_total{op="get",result="error"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}
