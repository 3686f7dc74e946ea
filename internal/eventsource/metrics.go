package eventsource

import "github.com/prometheus/client_golang/prometheus"

var (
	streamState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_client_sse_state",
			Help: "Last event stream state (0 idle, 1 connecting, 2 open, 3 reconnecting, 4 closed, 5 failed).",
		},
	)
	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_client_sse_reconnects_total",
			Help: "Total scheduled event stream reconnects.",
		},
	)
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_client_sse_events_total",
			Help: "Total server-sent events received by name.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(streamState, reconnectsTotal, eventsTotal)
}

func setStateGauge(s State) {
	streamState.Set(float64(s))
}
