package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the verification service
type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter
	Verifications   *prometheus.CounterVec
	Signatures      *prometheus.CounterVec
}

// NewMetrics registers the service metrics with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigkit_http_requests_total",
				Help: "The total number of HTTP requests by path and status code",
			},
			[]string{"path", "code"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigkit_http_request_duration_seconds",
				Help:    "HTTP request latency by path",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "sigkit_http_rate_limited_total",
			Help: "The total number of requests rejected by the rate limiter",
		}),
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigkit_verifications_total",
				Help: "Signature verifications by scheme and outcome (valid, invalid, replayed)",
			},
			[]string{"scheme", "outcome"},
		),
		Signatures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigkit_signatures_total",
				Help: "Signing requests by scheme and outcome (success, failure)",
			},
			[]string{"scheme", "outcome"},
		),
	}
}
