package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_client_api_requests_total",
			Help: "Total requests sent to the messaging API.",
		},
		[]string{"op", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_client_api_request_duration_seconds",
			Help:    "Latency of requests sent to the messaging API.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

func observeRequest(op, status string, elapsed time.Duration) {
	if op == "" {
		op = "unknown"
	}
	requestsTotal.WithLabelValues(op, status).Inc()
	requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
