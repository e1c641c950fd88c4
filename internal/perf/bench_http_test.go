package perf

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/obra-ledger/obra-ledger/internal/app"
	"github.com/obra-ledger/obra-ledger/internal/observability"
)

func newRouter() http.Handler {
	return app.NewRouter(app.RouterParams{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  &app.Config{AppRateLimit: 1_000_000},
		Metrics: observability.NewMetrics(),
	})
}

func TestMiddlewareLatencyTarget(t *testing.T) {
	router := newRouter()
	samples := make([]time.Duration, 0, 200)
	for i := 0; i < 200; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		start := time.Now()
		router.ServeHTTP(rec, req)
		samples = append(samples, time.Since(start))
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}

	threshold := 50 * time.Millisecond
	if p95 := percentile95(samples); p95 > threshold {
		t.Fatalf("middleware latency regression: p95=%s threshold=%s", p95, threshold)
	}
}

func BenchmarkRouterHealthz(b *testing.B) {
	router := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
