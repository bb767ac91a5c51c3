package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alert_automation"

// Metrics holds the Prometheus collectors for the automation pipeline,
// notification fanout and operator API.
type Metrics struct {
	// Monitoring ticks.
	CyclesTotal   prometheus.Counter
	CycleDuration prometheus.Histogram
	Candidates    *prometheus.CounterVec // labels: domain={weather,earthquake}, outcome={created,skipped,error}
	FetchErrors   *prometheus.CounterVec // labels: source={weather,usgs}
	RulesSkipped  prometheus.Counter
	AlertsExpired prometheus.Counter

	// Approval workflow.
	Decisions *prometheus.CounterVec // labels: decision={approved,rejected}

	// Fanout.
	Notifications *prometheus.CounterVec // labels: method, status
	PushBatches   *prometheus.CounterVec // labels: outcome={ok,failed}
	QueueDepth    prometheus.Gauge

	StreamSubscribers prometheus.Gauge

	HTTPRequests *prometheus.HistogramVec // labels: method, route, status
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := build(true)
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.Candidates,
		m.FetchErrors,
		m.RulesSkipped,
		m.AlertsExpired,
		m.Decisions,
		m.Notifications,
		m.PushBatches,
		m.QueueDepth,
		m.StreamSubscribers,
		m.HTTPRequests,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return build(false)
}

func build(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      help("Monitoring ticks started."),
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      help("Duration of a complete monitoring tick."),
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      help("Candidate records processed by domain and outcome."),
		}, []string{"domain", "outcome"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      help("Environmental data fetch failures by source."),
		}, []string{"source"}),
		RulesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_rules_total",
			Help:      help("Rules left out of a tick snapshot because their conditions could not be decoded."),
		}),
		AlertsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_expired_total",
			Help:      help("Alerts deactivated by the expiry sweep."),
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      help("Operator decisions on pending alerts."),
		}, []string{"decision"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_attempts_total",
			Help:      help("Notification attempts by method and final status."),
		}, []string{"method", "status"}),
		PushBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_batches_total",
			Help:      help("Multicast push batches by outcome."),
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      help("Fanout jobs waiting in the dispatch queue."),
		}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_subscribers",
			Help:      help("Connected alert stream subscribers."),
		}),
		HTTPRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      help("Operator API request duration."),
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
