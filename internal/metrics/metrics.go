// Package metrics exposes Prometheus collectors for the pinfetch services.
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

// Cache lookup results.
const (
	CacheHit        = "hit"
	CacheMiss       = "miss"
	CacheIncomplete = "incomplete"
	CacheError      = "error"
)

var (
	outcomesTotal              *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	resolveFailuresTotal       *prometheus.CounterVec
	headlessPromotionsTotal    prometheus.Counter
	offloadResponsesTotal      *prometheus.CounterVec
	admissionRejectionsTotal   *prometheus.CounterVec
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		outcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinfetch_outcomes_total",
				Help: "Total number of delivery outcomes, labeled by kind.",
			},
			[]string{"kind"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinfetch_cache_lookups_total",
				Help: "Total number of resolution cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		resolveFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinfetch_resolve_failures_total",
				Help: "Total number of failed resolutions, labeled by reason.",
			},
			[]string{"reason"},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pinfetch_headless_promotions_total",
				Help: "Total number of page fetches repeated in a headless browser.",
			},
		)

		offloadResponsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinfetch_offload_responses_total",
				Help: "Total number of offload worker responses, labeled by status code.",
			},
			[]string{"code"},
		)

		admissionRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinfetch_admission_rejections_total",
				Help: "Total number of inbound requests refused before the pipeline, labeled by reason.",
			},
			[]string{"reason"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pinfetch_rate_limit_delay_seconds",
				Help:    "Histogram of per-chat rate limit wait durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOutcome counts a terminal outcome.
func ObserveOutcome(kind string) {
	outcomesTotal.WithLabelValues(kind).Inc()
}

// ObserveCacheLookup counts a cache lookup result.
func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveResolveFailure counts a failed resolution.
func ObserveResolveFailure(reason string) {
	resolveFailuresTotal.WithLabelValues(reason).Inc()
}

// ObserveHeadlessPromotion counts a headless re-fetch.
func ObserveHeadlessPromotion() {
	headlessPromotionsTotal.Inc()
}

// ObserveOffloadResponse counts an offload worker reply; code 0 marks a transport failure.
func ObserveOffloadResponse(code int) {
	offloadResponsesTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveAdmissionRejection counts a request refused by admission control.
func ObserveAdmissionRejection(reason string) {
	admissionRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
