package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "appgen",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgen",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appgen",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"method", "route"},
	)

	syntheses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgen",
			Subsystem: "synthesis",
			Name:      "pages_total",
			Help:      "Page syntheses by outcome.",
		},
		[]string{"outcome"},
	)

	initRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "appgen",
			Subsystem: "initializer",
			Name:      "runs_total",
			Help:      "Tenant initialization runs by result.",
		},
		[]string{"result"},
	)

	modelDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "appgen",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of model provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"provider", "kind", "status"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		syntheses,
		initRuns,
		modelDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
// Routes are labelled by their chi pattern so tenant ids do not explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordSynthesis counts one page synthesis outcome.
func RecordSynthesis(outcome string) {
	syntheses.WithLabelValues(outcome).Inc()
}

// RecordInitRun counts one initializer run (initialized, failed, skipped).
func RecordInitRun(result string) {
	initRuns.WithLabelValues(result).Inc()
}

// RecordModelCall observes one provider call; kind is "response" or "design".
func RecordModelCall(provider, kind string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	modelDuration.WithLabelValues(provider, kind, status).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
