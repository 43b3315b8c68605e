package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meter_route"

// Metrics holds the Prometheus counters, histograms, and gauges for a route session.
type Metrics struct {
	Confirmations    *prometheus.CounterVec // labels: classification={normal,negative,low,high}
	Workflows        *prometheus.CounterVec // labels: kind={negative,low,high}, outcome={completed,abandoned,failed}
	NavigationPrompt *prometheus.CounterVec // labels: resolution={prompted,confirm,leave,cancel,suppressed}
	RouteLoaded      prometheus.Gauge
	RouteMeters      prometheus.Gauge

	// History fetch metrics.
	HistoryFetches       *prometheus.CounterVec // labels: outcome={success,error,empty}
	HistoryCache         *prometheus.CounterVec // labels: result={hit,miss,expired}
	HistoryStaleDiscards prometheus.Counter
	HistoryFetchDuration prometheus.Histogram

	// Submission metrics.
	Submissions        *prometheus.CounterVec // labels: outcome={success,error}
	NotificationErrors prometheus.Counter
}

// NewMetrics creates and registers all route metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Confirmations,
		m.Workflows,
		m.NavigationPrompt,
		m.RouteLoaded,
		m.RouteMeters,
		m.HistoryFetches,
		m.HistoryCache,
		m.HistoryStaleDiscards,
		m.HistoryFetchDuration,
		m.Submissions,
		m.NotificationErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Readings confirmed, by classification.",
		}, []string{"classification"}),
		Workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_workflows_total",
			Help:      "Verification workflows closed, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		NavigationPrompt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigation_prompts_total",
			Help:      "Guarded navigation attempts by resolution.",
		}, []string{"resolution"}),
		RouteLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "route_loaded",
			Help:      "1 once the route's meters are loaded, 0 otherwise.",
		}),
		RouteMeters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "route_meters",
			Help:      "Number of meters in the loaded route.",
		}),
		HistoryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_fetches_total",
			Help:      "Meter history fetches by outcome.",
		}, []string{"outcome"}),
		HistoryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_cache_total",
			Help:      "History cache lookups by result.",
		}, []string{"result"}),
		HistoryStaleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_stale_discards_total",
			Help:      "History fetch results dropped because the meter was no longer displayed.",
		}),
		HistoryFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "history_fetch_duration_seconds",
			Help:      "Persistence service history request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Route finalization attempts by outcome.",
		}, []string{"outcome"}),
		NotificationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_errors_total",
			Help:      "Finalized submissions that could not be published to the notification sink.",
		}),
	}
}
