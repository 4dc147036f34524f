package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Login flow metrics
	LoginsTotal        *prometheus.CounterVec
	LogoutsTotal       *prometheus.CounterVec
	ChallengesIssued   prometheus.Counter
	LoginFlowDuration  *prometheus.HistogramVec

	// Ticket verification metrics
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration prometheus.Histogram

	// Ledger metrics
	LedgerOperationsTotal *prometheus.CounterVec
	OrphanSweepsTotal     prometheus.Counter
	OrphansRemovedTotal   prometheus.Counter

	// Session metrics
	SessionCacheHitsTotal   prometheus.Counter
	SessionCacheMissesTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secondments_logins_total",
				Help: "Total number of completed login attempts",
			},
			[]string{"result"},
		),
		LogoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secondments_logouts_total",
				Help: "Total number of logouts",
			},
			[]string{"mode"},
		),
		ChallengesIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "secondments_challenges_issued_total",
				Help: "Total number of signed login challenges issued",
			},
		),
		LoginFlowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secondments_login_flow_duration_seconds",
				Help:    "Login request handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secondments_ticket_verifications_total",
				Help: "Total number of ticket verification calls to the CAS provider",
			},
			[]string{"result"},
		),
		VerificationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "secondments_ticket_verification_duration_seconds",
				Help:    "Ticket verification round-trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		LedgerOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secondments_ledger_operations_total",
				Help: "Total number of session-ticket ledger operations",
			},
			[]string{"operation", "status"},
		),
		OrphanSweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "secondments_ledger_orphan_sweeps_total",
				Help: "Total number of orphaned session cleanup sweeps",
			},
		),
		OrphansRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "secondments_ledger_orphans_removed_total",
				Help: "Total number of orphaned session-ticket records removed",
			},
		),
		SessionCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "secondments_session_cache_hits_total",
				Help: "Total number of session cache hits",
			},
		),
		SessionCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "secondments_session_cache_misses_total",
				Help: "Total number of session cache misses",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "secondments_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "secondments_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.LoginsTotal,
		m.LogoutsTotal,
		m.ChallengesIssued,
		m.LoginFlowDuration,
		m.VerificationsTotal,
		m.VerificationDuration,
		m.LedgerOperationsTotal,
		m.OrphanSweepsTotal,
		m.OrphansRemovedTotal,
		m.SessionCacheHitsTotal,
		m.SessionCacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveVerification records the outcome and duration of a verification call
func (m *Metrics) ObserveVerification(result string, start time.Time) {
	m.VerificationsTotal.WithLabelValues(result).Inc()
	m.VerificationDuration.Observe(time.Since(start).Seconds())
}
