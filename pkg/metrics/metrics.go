package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service counters. Tests pass their own registry to
// avoid duplicate registration panics.
type Metrics struct {
	HTTPRequests  *prometheus.CounterVec
	HTTPLatencyMS *prometheus.HistogramVec
	OrdersCreated *prometheus.CounterVec
	ChargeFailed  *prometheus.CounterVec
	StatusChanged *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kishan",
			Subsystem: "orders",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		HTTPLatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kishan",
			Subsystem: "orders",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kishan",
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders created, by payment method.",
		}, []string{"method"}),
		ChargeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kishan",
			Subsystem: "orders",
			Name:      "charge_failures_total",
			Help:      "Failed charge attempts, by payment method and kind.",
		}, []string{"method", "kind"}),
		StatusChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kishan",
			Subsystem: "orders",
			Name:      "status_changes_total",
			Help:      "Order status transitions, by target status.",
		}, []string{"to"}),
	}
	reg.MustRegister(m.HTTPRequests, m.HTTPLatencyMS, m.OrdersCreated, m.ChargeFailed, m.StatusChanged)
	return m
}

func Handler() http.Handler {
	return promhttp.Handler()
}
