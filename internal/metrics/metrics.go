package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the tracking backend.
type Metrics struct {
	// Postback pipeline
	PostbacksReceived *prometheus.CounterVec
	LeadsCreated      *prometheus.CounterVec
	LeadsUpdated      *prometheus.CounterVec
	CorrelationLosses *prometheus.CounterVec
	PostbackDuration  *prometheus.HistogramVec

	// Store health
	StoreErrors   *prometheus.CounterVec
	StatsFailures *prometheus.CounterVec
	DBConnections *prometheus.GaugeVec

	// Analytics ingestion
	AnalyticsRequests *prometheus.CounterVec

	// Rate limiting
	RateLimitHits *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		PostbacksReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postbacks_received_total",
				Help:      "Postbacks received by notification type",
			},
			[]string{"type"},
		),
		LeadsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leads_created_total",
				Help:      "Lead records created by notification type",
			},
			[]string{"type"},
		),
		LeadsUpdated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leads_updated_total",
				Help:      "Lead records updated, by type transition",
			},
			[]string{"from", "to"},
		),
		CorrelationLosses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "correlation_losses_total",
				Help:      "Status updates that matched no prior record and fell back to create",
			},
			[]string{"type"},
		),
		PostbackDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "postback_duration_seconds",
				Help:      "Postback processing latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"type"},
		),

		StoreErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Lead store failures by operation",
			},
			[]string{"operation"},
		),
		StatsFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stats_failures_total",
				Help:      "Non-fatal campaign counter update failures",
			},
			[]string{"operation"},
		),
		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),

		AnalyticsRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analytics_requests_total",
				Help:      "Third-party analytics pulls by provider and outcome",
			},
			[]string{"provider", "status"},
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPostback counts an inbound postback.
func (m *Metrics) RecordPostback(ntype string) {
	m.PostbacksReceived.WithLabelValues(ntype).Inc()
}

// RecordLeadCreated counts a created record.
func (m *Metrics) RecordLeadCreated(ntype string) {
	m.LeadsCreated.WithLabelValues(ntype).Inc()
}

// RecordLeadUpdated counts an applied update.
func (m *Metrics) RecordLeadUpdated(from, to string) {
	m.LeadsUpdated.WithLabelValues(from, to).Inc()
}

// RecordCorrelationLoss counts a status update that fell back to create.
func (m *Metrics) RecordCorrelationLoss(ntype string) {
	m.CorrelationLosses.WithLabelValues(ntype).Inc()
}

// ObservePostbackDuration records postback processing latency.
func (m *Metrics) ObservePostbackDuration(ntype string, d time.Duration) {
	m.PostbackDuration.WithLabelValues(ntype).Observe(d.Seconds())
}

// RecordStoreError counts a lead store failure.
func (m *Metrics) RecordStoreError(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

// RecordStatsFailure counts a swallowed counter maintenance failure.
func (m *Metrics) RecordStatsFailure(operation string) {
	m.StatsFailures.WithLabelValues(operation).Inc()
}

// RecordAnalyticsRequest counts a third-party analytics pull.
func (m *Metrics) RecordAnalyticsRequest(provider, status string) {
	m.AnalyticsRequests.WithLabelValues(provider, status).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}
