package reqcoord

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for operation metrics.
const (
	outcomeSuccess   = "success"
	outcomeError     = "error"
	outcomeHit       = "hit"
	outcomeJoined    = "joined"
	outcomeThrottled = "throttled"
)

// MetricsCollector provides Prometheus metrics for a Coordinator's policies.
// All methods are safe on a nil receiver.
type MetricsCollector struct {
	callsTotal        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheEntries *prometheus.GaugeVec
	cacheCleared *prometheus.CounterVec

	dedupJoins *prometheus.CounterVec
	inFlight   *prometheus.GaugeVec

	throttled *prometheus.CounterVec

	storeErrors *prometheus.CounterVec

	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqcoord_calls_total",
				Help: "Total number of coordinated calls by policy and outcome",
			},
			[]string{"name", "policy", "outcome"},
		),
		operationDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reqcoord_operation_duration_seconds",
				Help:    "Duration of wrapped operations that were actually executed",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"name", "policy"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqcoord_cache_hits_total",
				Help: "Total number of fresh cache hits",
			},
			[]string{"name"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqcoord_cache_misses_total",
				Help: "Total number of cache misses, including stale entries",
			},
			[]string{"name"},
		),
		cacheEntries: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqcoord_cache_entries",
				Help: "Current number of entries in the cache table",
			},
			[]string{"name"},
		),
		cacheCleared: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqcoord_cache_cleared_total",
				Help: "Total number of cache entries removed by invalidation",
			},
			[]string{"name", "mode"},
		),
		dedupJoins: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqcoord_dedup_joins_total",
				Help: "Total number of callers that joined an in-flight call",
			},
			[]string{"name"},
		),
		inFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reqcoord_in_flight",
				Help: "Number of deduplicated calls currently executing",
			},
			[]string{"name"},
		),
		throttled: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqcoord_throttled_total",
				Help: "Total number of calls suppressed by throttling",
			},
			[]string{"name"},
		),
		storeErrors: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "reqcoord_store_errors_total",
				Help: "Total number of cache store failures by operation",
			},
			[]string{"name", "op"},
		),
		registry: registry,
	}

	if g, ok := registry.(prometheus.Gatherer); ok {
		mc.gatherer = g
	}

	return mc
}

// RecordCall counts a finished call for a policy.
func (mc *MetricsCollector) RecordCall(name, policy, outcome string) {
	if mc == nil {
		return
	}

	mc.callsTotal.WithLabelValues(name, policy, outcome).Inc()
}

// RecordOperation observes how long an executed operation took.
func (mc *MetricsCollector) RecordOperation(name, policy string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.operationDuration.WithLabelValues(name, policy).Observe(duration.Seconds())
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(name string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(name).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(name string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(name).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}

	mc.cacheEntries.WithLabelValues(name).Set(float64(size))
}

// RecordCacheCleared adds n removed entries for an invalidation mode.
func (mc *MetricsCollector) RecordCacheCleared(name, mode string, n int) {
	if mc == nil || n <= 0 {
		return
	}

	mc.cacheCleared.WithLabelValues(name, mode).Add(float64(n))
}

// RecordDeduplicationJoin increments de-dup join counter.
func (mc *MetricsCollector) RecordDeduplicationJoin(name string) {
	if mc == nil {
		return
	}

	mc.dedupJoins.WithLabelValues(name).Inc()
}

// RecordInFlightStart increments in-flight gauge.
func (mc *MetricsCollector) RecordInFlightStart(name string) {
	if mc == nil {
		return
	}

	mc.inFlight.WithLabelValues(name).Inc()
}

// RecordInFlightEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordInFlightEnd(name string) {
	if mc == nil {
		return
	}

	mc.inFlight.WithLabelValues(name).Dec()
}

// RecordThrottled increments throttled counter.
func (mc *MetricsCollector) RecordThrottled(name string) {
	if mc == nil {
		return
	}

	mc.throttled.WithLabelValues(name).Inc()
}

// RecordStoreError increments store error counter for op (get, set, delete, keys, clear).
func (mc *MetricsCollector) RecordStoreError(name, op string) {
	if mc == nil {
		return
	}

	mc.storeErrors.WithLabelValues(name, op).Inc()
}

// Gatherer exposes the registry for /metrics handlers. It is nil when the
// registerer the collector was built on cannot gather.
func (mc *MetricsCollector) Gatherer() prometheus.Gatherer {
	if mc == nil {
		return nil
	}
	return mc.gatherer
}
