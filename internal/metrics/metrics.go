package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/linnemanlabs-starter/internal/version"
)

// ServerMetrics owns the service registry. Labels are bounded: routes come
// from chi patterns and module names from the configured package list.
type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	inflight       prometheus.Gauge
	reqTotal       *prometheus.CounterVec
	reqDur         *prometheus.HistogramVec
	respBytes      *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter
	buildInfo      *prometheus.GaugeVec

	ratelimitDeniedTotal  prometheus.Counter
	ratelimitVisitorTotal prometheus.Counter
	profilingActive       prometheus.Gauge

	extractionsTotal   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	bundlesTotal       *prometheus.CounterVec
	bundleDuration     *prometheus.HistogramVec
	bundleBytes        *prometheus.HistogramVec
	publishTotal       *prometheus.CounterVec
}

func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx responses by method and route",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total bundle requests rejected by the rate limiter",
		}),
		ratelimitVisitorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_clients_total",
			Help: "Total client IPs that hit the rate limit",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled (0)",
		}),
		extractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starter_extractions_total",
			Help: "Package extractions by module and outcome",
		}, []string{"module", "outcome"}),
		extractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starter_extraction_duration_seconds",
			Help:    "Time to resolve, fetch and unpack one package",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"module"}),
		bundlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starter_bundles_total",
			Help: "Assembled bundles by mode and whether any package failed",
		}, []string{"mode", "degraded"}),
		bundleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starter_bundle_duration_seconds",
			Help:    "Time to build a bundle end to end",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),
		bundleBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starter_bundle_size_bytes",
			Help:    "Size of assembled archives",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 12),
		}, []string{"mode"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starter_archive_publish_total",
			Help: "Archive uploads by result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.errorsTotal,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitVisitorTotal,
		m.profilingActive,
		m.extractionsTotal,
		m.extractionDuration,
		m.bundlesTotal,
		m.bundleDuration,
		m.bundleBytes,
		m.publishTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic() { m.httpPanicTotal.Inc() }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":        app,
		"component":  component,
		"version":    vi.Version,
		"commit":     vi.Commit,
		"build_date": vi.BuildDate,
		"go_version": vi.GoVersion,
		"vcs_dirty":  dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() { m.ratelimitDeniedTotal.Inc() }

func (m *ServerMetrics) IncRateLimitVisitor() { m.ratelimitVisitorTotal.Inc() }

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// ObserveExtraction records one package extraction.
func (m *ServerMetrics) ObserveExtraction(module, outcome string, seconds float64) {
	m.extractionsTotal.WithLabelValues(module, outcome).Inc()
	m.extractionDuration.WithLabelValues(module).Observe(seconds)
}

// ObserveBundle records one assembled archive.
func (m *ServerMetrics) ObserveBundle(mode string, degraded bool, seconds float64, bytes int) {
	m.bundlesTotal.WithLabelValues(mode, strconv.FormatBool(degraded)).Inc()
	m.bundleDuration.WithLabelValues(mode).Observe(seconds)
	m.bundleBytes.WithLabelValues(mode).Observe(float64(bytes))
}

// ObservePublish records one archive upload attempt.
func (m *ServerMetrics) ObservePublish(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	m.publishTotal.WithLabelValues(result).Inc()
}
