package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentaldesk_orders_submitted_total",
		Help: "Orders persisted by submissions, by split side (approved or pending).",
	},
		[]string{"split"},
	)

	AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentaldesk_assignments_total",
		Help: "Units bound to order lines, by entry point.",
	},
		[]string{"path"},
	)

	ConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentaldesk_conflicts_total",
		Help: "Rejected mutations, by conflict kind.",
	},
		[]string{"kind"},
	)

	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentaldesk_optimistic_rollbacks_total",
		Help: "Optimistic cache mutations restored after a failed write.",
	})

	StaleCompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentaldesk_stale_completions_total",
		Help: "Failed writes whose rollback was skipped because a newer mutation superseded them.",
	})

	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentaldesk_sync_runs_total",
		Help: "Cache reconciliation runs, by mode.",
	},
		[]string{"mode"},
	)

	ChangeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentaldesk_change_events_total",
		Help: "Change-stream events applied to the cache.",
	},
		[]string{"table", "type"},
	)

	CacheUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rentaldesk_cache_units",
		Help: "Current number of physical units in the cache.",
	})

	CacheOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rentaldesk_cache_orders",
		Help: "Current number of orders in the cache.",
	})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentaldesk_outbox_published_total",
		Help: "Audit events delivered to the broker.",
	})

	OutboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentaldesk_outbox_failed_total",
		Help: "Audit event delivery attempts that failed.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentaldesk_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)
)
