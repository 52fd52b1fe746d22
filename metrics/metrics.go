package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sentiment pipeline metrics
var (
	// RequestsTotal tracks sentiment requests by outcome (ok, insufficient_data, search_unavailable, error)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentimint_requests_total",
			Help: "Total sentiment requests by outcome",
		},
		[]string{"outcome"},
	)

	// RequestDuration tracks end-to-end request latency in seconds
	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentimint_request_duration_seconds",
			Help:    "Sentiment request duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)

	// PagesTotal tracks candidate pages by outcome (analyzed, skipped) and skip reason
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentimint_pages_total",
			Help: "Candidate pages by outcome and skip reason",
		},
		[]string{"outcome", "reason"},
	)

	// LinksDiscovered tracks how many candidate links each search produced
	LinksDiscovered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentimint_links_discovered",
			Help:    "Candidate links extracted from one search results page",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	// AnalysisDuration tracks text analysis latency in seconds
	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentimint_analysis_duration_seconds",
			Help:    "Text analysis duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Scores tracks the distribution of corpus scores
	Scores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentimint_score",
			Help:    "Corpus sentiment score of completed requests",
			Buckets: prometheus.LinearBuckets(-1, 0.2, 11),
		},
	)
)

// HTTP API metrics
var (
	// HTTPRequestsTotal tracks API requests by path and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentimint_http_requests_total",
			Help: "Total API requests by path and status code",
		},
		[]string{"path", "status"},
	)

	// RateLimitedTotal tracks requests rejected by the per-client throttle
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentimint_rate_limited_total",
			Help: "Total API requests rejected by the per-client rate limit",
		},
	)
)

// Database metrics
var (
	// DBConnectionsCurrent tracks pool connections by state (in_use, idle, open)
	DBConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentimint_db_connections_current",
			Help: "Current database pool connections by state",
		},
		[]string{"state"},
	)

	// DBWaitTotal tracks connections waited for since startup
	DBWaitTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentimint_db_wait_count",
			Help: "Total number of connections waited for",
		},
	)
)

// Skip outcomes
const (
	PageAnalyzed = "analyzed"
	PageSkipped  = "skipped"
)

// RecordPage counts one candidate page; reason is empty for analyzed pages
func RecordPage(outcome, reason string) {
	PagesTotal.WithLabelValues(outcome, reason).Inc()
}

// UpdateDBStats copies the pool statistics of db into the database gauges
func UpdateDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	stats := db.Stats()
	DBConnectionsCurrent.WithLabelValues("open").Set(float64(stats.OpenConnections))
	DBConnectionsCurrent.WithLabelValues("in_use").Set(float64(stats.InUse))
	DBConnectionsCurrent.WithLabelValues("idle").Set(float64(stats.Idle))
	DBWaitTotal.Set(float64(stats.WaitCount))
}
