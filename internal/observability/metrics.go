package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aeras", Name: "ride_transitions_total", Help: "Committed ride status transitions"},
		[]string{"from", "to"},
	)
	TransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "aeras", Name: "ride_transition_conflicts_total", Help: "Conditional updates lost to a concurrent writer"})
	ExpiryCancellations = promauto.NewCounter(prometheus.CounterOpts{Namespace: "aeras", Name: "ride_expiry_cancellations_total", Help: "Rides canceled by the expiry monitor"})

	RewardsTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "aeras", Name: "ledger_rewards_total", Help: "Completed-ride rewards credited"})
	DegradedConsistency = promauto.NewCounter(prometheus.CounterOpts{Namespace: "aeras", Name: "ledger_degraded_consistency_total", Help: "Balance updates that took the non-atomic fallback path"})
	ReconcileDrift      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "aeras", Name: "ledger_reconcile_corrections_total", Help: "Balances corrected by the reconciliation pass"})

	BridgePublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "aeras", Name: "bridge_published_total", Help: "Device status messages published"},
		[]string{"status"},
	)
	BridgePublishFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "aeras", Name: "bridge_publish_failures_total", Help: "Device status publishes that failed"})
)
