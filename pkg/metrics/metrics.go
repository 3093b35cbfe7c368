package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes recorded by the ingestion path
const (
	OutcomeStored           = "stored"
	OutcomeDuplicate        = "duplicate"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeForbiddenSource  = "forbidden_source"
	OutcomeBadRequest       = "bad_request"
	OutcomeStorageError     = "storage_error"
)

// Metrics owns a private registry so tests can build as many as they like
type Metrics struct {
	registry       *prometheus.Registry
	deliveries     *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	allowlistSize  *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hookmetrics",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries by event type and outcome",
	}, []string{"event_type", "outcome"})
	m.ingestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hookmetrics",
		Name:      "webhook_ingest_duration_seconds",
		Help:      "Time spent validating and storing a delivery",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})
	m.allowlistSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hookmetrics",
		Name:      "allowlist_ranges",
		Help:      "CIDR ranges currently loaded per allowlist",
	}, []string{"source"})

	m.registry.MustRegister(
		m.deliveries,
		m.ingestDuration,
		m.allowlistSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDelivery counts one delivery and records how long it took
func (m *Metrics) ObserveDelivery(eventType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.deliveries.WithLabelValues(eventType, outcome).Inc()
	m.ingestDuration.WithLabelValues(eventType).Observe(elapsed.Seconds())
}

// SetAllowlistSize publishes the number of ranges loaded for an allowlist source
func (m *Metrics) SetAllowlistSize(source string, n int) {
	if m == nil {
		return
	}
	m.allowlistSize.WithLabelValues(source).Set(float64(n))
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests that gather values directly
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
