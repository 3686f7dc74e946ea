package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	relayConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_client_relay_connections",
			Help: "Current number of connected presentation clients.",
		},
	)
	relayMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_client_relay_messages_delivered_total",
			Help: "Total relay messages delivered to presentation clients.",
		},
	)
	relayClientsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_client_relay_clients_dropped_total",
			Help: "Clients disconnected because they fell behind.",
		},
	)
)

func init() {
	prometheus.MustRegister(relayConnections, relayMessagesDelivered, relayClientsDropped)
}

func incConnections() {
	relayConnections.Inc()
}

func decConnections() {
	relayConnections.Dec()
}

func addDelivered(count int) {
	relayMessagesDelivered.Add(float64(count))
}
