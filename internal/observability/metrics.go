package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveCalls     prometheus.Gauge
	WebhookEvents   *prometheus.CounterVec
	Synthesis       *prometheus.CounterVec
	Bookings        *prometheus.CounterVec
	UpstreamLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_calls",
			Help:      "Number of in-progress call sessions.",
		}),
		WebhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Telephony webhook requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		Synthesis: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Audio synthesis requests by outcome.",
		}, []string{"outcome"}),
		Bookings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome.",
		}, []string{"outcome"}),
		UpstreamLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_ms",
			Help:      "Scheduling upstream round-trip latency in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 5000},
		}),
	}
}

// ObserveSynthesis satisfies the synthesis cache's metrics dependency.
func (m *Metrics) ObserveSynthesis(outcome string) {
	m.Synthesis.WithLabelValues(outcome).Inc()
}

// ObserveBooking satisfies the booking gateway's metrics dependency.
func (m *Metrics) ObserveBooking(outcome string) {
	m.Bookings.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstreamLatency(d time.Duration) {
	m.UpstreamLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveWebhook(endpoint string, status int) {
	m.WebhookEvents.WithLabelValues(endpoint, httpStatusClass(status)).Inc()
}

func httpStatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
