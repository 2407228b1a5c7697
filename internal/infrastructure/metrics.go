package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service-level Prometheus collectors. All collectors
// register on the default registry, which the /metrics endpoint serves.
type Metrics struct {
	ChecksTotal      *prometheus.CounterVec
	AdminOpsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	StoreContentions prometheus.Counter
}

// NewMetrics creates and registers the service collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensegate",
			Name:      "checks_total",
			Help:      "Device check calls by outcome.",
		}, []string{"outcome"}),
		AdminOpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "licensegate",
			Name:      "admin_operations_total",
			Help:      "Admin directives by operation and outcome.",
		}, []string{"operation", "outcome"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "licensegate",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		StoreContentions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "licensegate",
			Name:      "store_contentions_total",
			Help:      "Operations rejected with a transient store error.",
		}),
	}
}
