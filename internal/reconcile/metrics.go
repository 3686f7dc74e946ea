package reconcile

import "github.com/prometheus/client_golang/prometheus"

const (
	dropForeignConversation = "foreign_conversation"
	dropRoutingFiltered     = "routing_filtered"
	dropUnsupported         = "unsupported"
)

var entriesDropped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "messaging_client_entries_dropped_total",
		Help: "Total conversation entries not added to the transcript, by reason.",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(entriesDropped)
}

func observeDrop(reason string) {
	entriesDropped.WithLabelValues(reason).Inc()
}
