package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/keithlinneman/linnemanlabs-starter/internal/version"
)

// family returns the gathered family named name or fails.
func family(t *testing.T, m *ServerMetrics, name string) *dto.MetricFamily {
	t.Helper()
	fams, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range fams {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %q not gathered", name)
	return nil
}

// labelsMatch reports whether every want label is present on mt.
func labelsMatch(mt *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range mt.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func counterValue(t *testing.T, m *ServerMetrics, name string, labels map[string]string) float64 {
	t.Helper()
	for _, mt := range family(t, m, name).GetMetric() {
		if labelsMatch(mt, labels) {
			return mt.GetCounter().GetValue()
		}
	}
	t.Fatalf("%s%v not found", name, labels)
	return 0
}

func histogramCount(t *testing.T, m *ServerMetrics, name string, labels map[string]string) uint64 {
	t.Helper()
	for _, mt := range family(t, m, name).GetMetric() {
		if labelsMatch(mt, labels) {
			return mt.GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("%s%v not found", name, labels)
	return 0
}

func TestHandler_Scrape(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"http_inflight_requests", "http_panic_total", "profiling_active", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Errorf("%s missing from scrape", name)
		}
	}
}

func TestObserveExtraction(t *testing.T) {
	m := New()
	m.ObserveExtraction("p5", "ok", 0.2)
	m.ObserveExtraction("p5", "ok", 0.3)
	m.ObserveExtraction("p5", "fetch", 1)

	if v := counterValue(t, m, "starter_extractions_total", map[string]string{"module": "p5", "outcome": "ok"}); v != 2 {
		t.Fatalf("ok = %v", v)
	}
	if v := counterValue(t, m, "starter_extractions_total", map[string]string{"module": "p5", "outcome": "fetch"}); v != 1 {
		t.Fatalf("fetch = %v", v)
	}
	if n := histogramCount(t, m, "starter_extraction_duration_seconds", map[string]string{"module": "p5"}); n != 3 {
		t.Fatalf("duration samples = %d", n)
	}
}

func TestObserveBundle(t *testing.T) {
	m := New()
	m.ObserveBundle("full", false, 1.5, 400_000)
	m.ObserveBundle("minimal", true, 0.5, 50_000)

	if v := counterValue(t, m, "starter_bundles_total", map[string]string{"mode": "minimal", "degraded": "true"}); v != 1 {
		t.Fatalf("minimal degraded = %v", v)
	}
	if n := histogramCount(t, m, "starter_bundle_size_bytes", map[string]string{"mode": "full"}); n != 1 {
		t.Fatalf("size samples = %d", n)
	}
}

func TestObservePublish(t *testing.T) {
	m := New()
	m.ObservePublish(true)
	m.ObservePublish(false)
	m.ObservePublish(false)
	if v := counterValue(t, m, "starter_archive_publish_total", map[string]string{"result": "error"}); v != 2 {
		t.Fatalf("errors = %v", v)
	}
}

func TestSetBuildInfo(t *testing.T) {
	m := New()
	dirty := true
	m.SetBuildInfoFromVersion("starter", "server", version.Info{Version: "1.2.3", Commit: "abc", VCSDirty: &dirty})

	mt := family(t, m, "build_info").GetMetric()
	if len(mt) != 1 || !labelsMatch(mt[0], map[string]string{"version": "1.2.3", "vcs_dirty": "true", "component": "server"}) {
		t.Fatalf("build_info = %v", mt)
	}
	if mt[0].GetGauge().GetValue() != 1 {
		t.Fatal("build_info value should be 1")
	}
}

func TestCountersAndGauges(t *testing.T) {
	m := New()
	m.IncHttpPanic()
	m.IncRateLimitDenied()
	m.IncRateLimitDenied()
	m.IncRateLimitVisitor()
	m.SetProfilingActive(true)

	if v := counterValue(t, m, "http_panic_total", nil); v != 1 {
		t.Fatalf("panics = %v", v)
	}
	if v := counterValue(t, m, "http_requests_rate_limited_total", nil); v != 2 {
		t.Fatalf("denied = %v", v)
	}
	if v := family(t, m, "profiling_active").GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Fatalf("profiling_active = %v", v)
	}
}
