package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ObserveHTTP("GET", "/layers", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestIngestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(ingestTotal.WithLabelValues("ok"))
	ObserveIngest("ok", 0.02)
	if got := testutil.ToFloat64(ingestTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("layer_ingest_total{outcome=ok}=%v want %v", got, before+1)
	}

	fb := testutil.ToFloat64(fallbackTotal)
	IncFallback()
	if got := testutil.ToFloat64(fallbackTotal); got != fb+1 {
		t.Fatalf("layer_fallback_total=%v want %v", got, fb+1)
	}

	IncInvalidation("kafka", true)
	if got := testutil.ToFloat64(invalidations.WithLabelValues("kafka", "removed")); got < 1 {
		t.Fatalf("layer_invalidations_total{source=kafka,result=removed}=%v want >=1", got)
	}

	SetCacheBytes(1234)
	if got := testutil.ToFloat64(cacheBytes); got != 1234 {
		t.Fatalf("layer_cache_bytes=%v want 1234", got)
	}
}

func TestRegister_SecondRegistryAndIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg)

	IncCacheHit()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "layer_cache_results_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("layer_cache_results_total not gathered from second registry")
	}

	var are prometheus.AlreadyRegisteredError
	if err := reg.Register(cacheBytes); !errors.As(err, &are) {
		t.Fatalf("expected AlreadyRegisteredError, got %v", err)
	}
}
