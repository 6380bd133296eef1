package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TasksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entregahub_tasks_dispatched_total",
			Help: "Total number of task dispatch attempts by status and queue.",
		},
		[]string{"status", "queue"}, // status: PENDING, FAILED
	)

	TaskExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entregahub_task_executions_total",
			Help: "Total number of worker task executions by task and outcome.",
		},
		[]string{"task", "status"}, // status: SUCCESS, FAILURE
	)

	SignatureFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entregahub_signature_failures_total",
			Help: "Total number of rejected signatures by trust domain.",
		},
		[]string{"domain"}, // internal, authority
	)

	ReconcileAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entregahub_reconcile_attempts_total",
			Help: "Total number of retry re-submissions through the public boundary.",
		},
	)

	ReconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entregahub_reconcile_outcomes_total",
			Help: "Total number of reconciliation loop outcomes.",
		},
		[]string{"outcome"}, // RETRY_SUBMITTED, FAILED_MAX_RETRIES
	)

	ConfirmacionesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entregahub_confirmaciones_total",
			Help: "Total number of delivery confirmation requests by result.",
		},
		[]string{"result"}, // accepted, pending_system, bad_request, forbidden
	)

	TaskDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entregahub_task_duration_seconds",
			Help:    "Worker task execution duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		TasksDispatchedTotal,
		TaskExecutionsTotal,
		SignatureFailuresTotal,
		ReconcileAttemptsTotal,
		ReconcileOutcomesTotal,
		ConfirmacionesTotal,
		TaskDurationSeconds,
	)
}
