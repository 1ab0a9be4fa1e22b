// Package metrics holds the prometheus collectors of the backend and the
// server exposing them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "appinstance"

var (
	// DeprovisioningOutcome counts deprovisioning runs by outcome.
	DeprovisioningOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deprovisioning_outcomes_total",
		Help:      "Deprovisioning runs by outcome.",
	}, []string{"outcome"})

	// DeprovisionedEntities counts dependents removed by the cascade.
	DeprovisionedEntities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deprovisioned_entities_total",
		Help:      "Entities removed while deprovisioning, by kind.",
	}, []string{"kind"})

	ProvisioningEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provisioning_events_total",
		Help:      "Provisioning steps by event.",
	}, []string{"event"})

	WebhookCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_calls_total",
		Help:      "Outbound provider webhook calls by kind and outcome.",
	}, []string{"kind", "outcome"})

	WebhookDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_duration_seconds",
		Help:      "Outbound provider webhook latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	PurgeSwept = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purge_swept_total",
		Help:      "Items handled by the purge sweep, by kind and result.",
	}, []string{"kind", "result"})
)

// Registry holds every collector of this package.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		DeprovisioningOutcome,
		DeprovisionedEntities,
		ProvisioningEvents,
		WebhookCalls,
		WebhookDuration,
		PurgeSwept,
	)
}
