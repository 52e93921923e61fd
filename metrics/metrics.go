package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tourmap"

// Registry holds every tourmap metric. It is separate from the prometheus default registry.
var Registry = prometheus.NewRegistry()

var (
	// CacheLookupsTotal counts cache resolutions. kind: tile|bbox|radius|ring, result: hit|miss|error
	CacheLookupsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"kind", "result"},
	)

	// UpstreamRequestsTotal counts requests to external APIs. upstream: overpass|gemini|nominatim, or tourmap for the explorer calling a server
	UpstreamRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of requests to upstream APIs",
		},
		[]string{"upstream", "kind", "status"},
	)

	UpstreamDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Upstream request latency in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 35},
		},
		[]string{"upstream", "kind"},
	)

	// PayloadRejectionsTotal counts results refused by the size guards. reason: raw_elements|payload_bytes
	PayloadRejectionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_rejections_total",
			Help:      "Total number of upstream results rejected for being too large",
		},
		[]string{"reason"},
	)

	HTTPRequestsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// RegisterRuntimeCollectors adds the Go runtime and process collectors. Call it once, from main.
func RegisterRuntimeCollectors() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves the registry in the prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveUpstream records one upstream request. status is the HTTP status, or 0 if no response was received.
func ObserveUpstream(upstream, kind string, status int, start time.Time) {
	statusLabel := "error"
	if status != 0 {
		statusLabel = strconv.Itoa(status)
	}

	UpstreamRequestsTotal.WithLabelValues(upstream, kind, statusLabel).Inc()
	UpstreamDuration.WithLabelValues(upstream, kind).Observe(time.Since(start).Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.statusCode == 0 {
		rw.statusCode = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// HTTPMiddleware records request counts and latencies, labelled with the chi route pattern rather than the raw path
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if routeContext := chi.RouteContext(r.Context()); routeContext != nil {
			if pattern := routeContext.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := recorder.statusCode
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
