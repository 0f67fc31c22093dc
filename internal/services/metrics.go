package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MetricsRegistry holds every collector exposed on /metrics.
var MetricsRegistry = prometheus.NewRegistry()

var (
	chainOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emergex",
		Subsystem: "role_chain",
		Name:      "operations_total",
		Help:      "Role chain operations by outcome",
	}, []string{"operation", "outcome"})

	chainPropagated = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "emergex",
		Subsystem: "role_chain",
		Name:      "propagated_records",
		Help:      "Records whose priority was rewritten by one propagation",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	chainLockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "emergex",
		Subsystem: "role_chain",
		Name:      "lock_wait_seconds",
		Help:      "Time spent waiting for a project chain lock",
		Buckets:   prometheus.DefBuckets,
	})

	chainMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "emergex",
		Subsystem: "role_chain",
		Name:      "integrity_mismatches_total",
		Help:      "Stored priorities that disagreed with the chain structure",
	})

	chainTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emergex",
		Subsystem: "role_chain",
		Name:      "tasks_total",
		Help:      "Background chain verification tasks by outcome",
	}, []string{"source", "outcome"})
)

func init() {
	MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		chainOperations,
		chainPropagated,
		chainLockWait,
		chainMismatches,
		chainTasks,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "emergex",
			Name:      "sse_active_clients",
			Help:      "Connected role chain event subscribers",
		}, func() float64 { return float64(GetSSEHub().ClientCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "emergex",
			Name:      "queue_async_enabled",
			Help:      "Whether the Redis task queue is active (1=yes, 0=no)",
		}, func() float64 {
			if q := GetTaskQueue(); q != nil && q.IsAsync() {
				return 1
			}
			return 0
		}),
	)
}

// outcomeLabel maps an operation result to a low-cardinality label.
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if rcErr, ok := AsRoleChainError(err); ok {
		return string(rcErr.Kind)
	}
	return "error"
}

func observeChainOperation(operation string, err error) {
	chainOperations.WithLabelValues(operation, outcomeLabel(err)).Inc()
}
