package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream layer fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_ingest_total",
			Help: "Layer ingestions by outcome.",
		},
		[]string{"outcome"},
	)

	ingestDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "layer_ingest_duration_seconds",
			Help:    "End-to-end duration of layer ingestion on cache miss.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)

	fallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "layer_fallback_total",
			Help: "Reprojected layers that failed validation and were re-fetched without reprojection.",
		},
	)

	crsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_crs_detected_total",
			Help: "CRS classification results.",
		},
		[]string{"crs"},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_cache_results_total",
			Help: "Layer cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_cache_evictions_total",
			Help: "Layer cache evictions by reason.",
		},
		[]string{"reason"},
	)

	cacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "layer_cache_bytes",
			Help: "Serialized size of all resident cache entries.",
		},
	)

	invalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_invalidations_total",
			Help: "Cache invalidations by source and result.",
		},
		[]string{"source", "result"},
	)

	invalidationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_invalidation_errors_total",
			Help: "Invalidation messages skipped, by kind.",
		},
		[]string{"kind"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		ingestTotal, ingestDurationSeconds, fallbackTotal, crsDetected,
		cacheResults, cacheEvictions, cacheBytes, invalidations, invalidationErrors,
	}
}

func init() {
	prometheus.MustRegister(collectors()...)
}

// Register adds the service collectors to an additional registry, such as
// the dedicated metrics listener's.
func Register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamLatencySeconds.WithLabelValues(upstream, outcome).Observe(durationSeconds)
}

func ObserveIngest(outcome string, durationSeconds float64) {
	ingestTotal.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		ingestDurationSeconds.Observe(durationSeconds)
	}
}

func IncFallback() { fallbackTotal.Inc() }

func IncCRSDetected(kind string) { crsDetected.WithLabelValues(kind).Inc() }

func IncCacheHit() { cacheResults.WithLabelValues("hit").Inc() }

func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func IncCacheEviction(reason string) { cacheEvictions.WithLabelValues(reason).Inc() }

func SetCacheBytes(n int) { cacheBytes.Set(float64(n)) }

func IncInvalidation(source string, removed bool) {
	result := "miss"
	if removed {
		result = "removed"
	}
	invalidations.WithLabelValues(source, result).Inc()
}

func IncInvalidationError(kind string) { invalidationErrors.WithLabelValues(kind).Inc() }
