package services

import "github.com/prometheus/client_golang/prometheus"

var (
	bundleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "key_bundle_requests_total",
			Help: "Bundle requests by outcome",
		},
		[]string{"outcome"},
	)
	statusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_status_transitions_total",
			Help: "Applied message status transitions",
		},
		[]string{"status"},
	)
	messagesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Messages persisted and fanned out",
		},
	)
)

func init() {
	prometheus.MustRegister(bundleRequestsTotal, statusTransitionsTotal, messagesSentTotal)
}
