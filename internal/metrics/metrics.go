// Package metrics exposes Prometheus collectors for the indexer.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	chunksIndexedTotal         prometheus.Counter
	queueDepth                 prometheus.Gauge
	inFlight                   prometheus.Gauge
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchErrorsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageindex_pages_total",
				Help: "Total number of pages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		chunksIndexedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pageindex_chunks_indexed_total",
				Help: "Total number of chunk vectors upserted.",
			},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pageindex_queue_depth",
				Help: "Number of pages waiting for a worker.",
			},
		)

		inFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pageindex_in_flight",
				Help: "Number of pages currently being processed.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pageindex_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by HTTP status class.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"status_class"},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageindex_fetch_errors_total",
				Help: "Total number of failed fetches, labeled by kind.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// StatusClass maps an HTTP status code to "1xx".."5xx", or "other".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for the given outcome.
func ObservePage(outcome string) {
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveChunksIndexed adds n upserted chunk vectors.
func ObserveChunksIndexed(n int) {
	if n > 0 {
		chunksIndexedTotal.Add(float64(n))
	}
}

// ObserveFetch records the latency of a fetch that produced a response.
// Crawled hosts are unbounded, so only the status class is a label.
func ObserveFetch(statusCode int, duration time.Duration) {
	fetchDurationSeconds.WithLabelValues(StatusClass(statusCode)).Observe(duration.Seconds())
}

// ObserveFetchError increments the fetch error counter for kind
// ("timeout", "transport" or "invalid").
func ObserveFetchError(kind string) {
	fetchErrorsTotal.WithLabelValues(kind).Inc()
}

// SetQueueDepth publishes the number of queued pages.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// IncInFlight increments the in-flight gauge.
func IncInFlight() {
	inFlight.Inc()
}

// DecInFlight decrements the in-flight gauge.
func DecInFlight() {
	inFlight.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
