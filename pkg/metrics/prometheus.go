package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StepTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidepath_step_transitions_total",
			Help: "Total number of step transitions by action and resulting status",
		},
		[]string{"action", "status"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidepath_executions_total",
			Help: "Total number of execution status changes by resulting status",
		},
		[]string{"status"},
	)

	ComposeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guidepath_compose_duration_seconds",
			Help:    "Config composition duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"workflow"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guidepath_llm_request_duration_seconds",
			Help:    "LLM provider request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
		[]string{"outcome"},
	)

	TransitionConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidepath_transition_conflicts_total",
			Help: "Total number of compare-and-swap conflicts by entity",
		},
		[]string{"entity"},
	)

	OutboxEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guidepath_outbox_events_total",
			Help: "Total number of outbox events relayed by result",
		},
		[]string{"result"},
	)

	SnoozeDueNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guidepath_snooze_due_notifications_total",
			Help: "Total number of snooze-due notifications emitted by the sweeper",
		},
	)
)
