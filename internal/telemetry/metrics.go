package telemetry

import "github.com/prometheus/client_golang/prometheus"

var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dramaforge",
		Subsystem: "stage",
		Name:      "duration_seconds",
		Help:      "Stage worker execution duration in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
	},
	[]string{"stage", "outcome"},
)

var WorkflowStepsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dramaforge",
		Subsystem: "workflow",
		Name:      "steps_total",
		Help:      "Total number of workflow steps executed, by stage and outcome.",
	},
	[]string{"stage", "outcome"},
)

var WorkflowVersionConflictsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "dramaforge",
		Subsystem: "workflow",
		Name:      "version_conflicts_total",
		Help:      "Total number of optimistic-concurrency retries in the workflow engine.",
	},
)

var QuotaDebitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dramaforge",
		Subsystem: "quota",
		Name:      "debits_total",
		Help:      "Total number of quota debit attempts, by tier and outcome.",
	},
	[]string{"tier", "outcome"},
)

var QuotaRefundsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "dramaforge",
		Subsystem: "quota",
		Name:      "refunds_total",
		Help:      "Total number of quota refunds issued.",
	},
)

var ProductionsCreatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "dramaforge",
		Subsystem: "production",
		Name:      "created_total",
		Help:      "Total number of productions created.",
	},
)

var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dramaforge",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds, by method, route, and status.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

var NotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dramaforge",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Total number of outbound notifications sent, by type.",
	},
	[]string{"type"},
)

// All returns every dramaforge-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		StageDuration,
		WorkflowStepsTotal,
		WorkflowVersionConflictsTotal,
		QuotaDebitsTotal,
		QuotaRefundsTotal,
		ProductionsCreatedTotal,
		NotificationsTotal,
		HTTPRequestDuration,
	}
}
