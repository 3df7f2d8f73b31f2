package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics holds the checkout and HTTP collectors. They are registered on the
// registry passed to New so tests can use a private registry.
type Metrics struct {
	CheckoutsStarted *prometheus.CounterVec
	Settlements      *prometheus.CounterVec
	Cancellations    *prometheus.CounterVec
	StaleSignals     *prometheus.CounterVec
	PendingIntents   prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPLatencyMS    *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "started_total",
			Help:      "Checkouts begun, by outcome of the begin step.",
		}, []string{"outcome"}),
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "settled_total",
			Help:      "Settled payment intents, by the observer that settled them.",
		}, []string{"observer"}),
		Cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "cancelled_total",
			Help:      "Payment intents resolved without payment, by final state.",
		}, []string{"state", "observer"}),
		StaleSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "stale_signals_total",
			Help:      "Completion signals that found their intent already consumed.",
		}, []string{"observer"}),
		PendingIntents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "pending_intents",
			Help:      "Intents awaiting payment in this process.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		HTTPLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
	}
	reg.MustRegister(
		m.CheckoutsStarted,
		m.Settlements,
		m.Cancellations,
		m.StaleSignals,
		m.PendingIntents,
		m.HTTPRequests,
		m.HTTPLatencyMS,
	)
	return m
}

// Discard returns collectors bound to a throwaway registry.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
