package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of the HTTP surface
type Metrics struct {
	Requests        *prometheus.CounterVec
	ResponseLatency *prometheus.HistogramVec
	Subscribers     prometheus.Gauge
}

// NewMetrics creates the node metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dicesettle_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		ResponseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dicesettle_http_response_latency_seconds",
			Help:    "Response latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dicesettle_event_subscribers",
			Help: "Number of connected event stream subscribers",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Requests,
			m.ResponseLatency,
			m.Subscribers,
		)
	}

	return m
}
