package operation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lemonaide",
		Subsystem: "operation",
		Name:      "executions_total",
		Help:      "Operation executions by name and outcome.",
	}, []string{"operation", "outcome"})

	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lemonaide",
		Subsystem: "operation",
		Name:      "duration_seconds",
		Help:      "Operation execution latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// Metrics records Prometheus counters and latency per execution.
func Metrics() Middleware {
	return func(next Executor) Executor {
		return func(ctx *ExecutionContext) (*Result, error) {
			start := time.Now()
			res, err := next(ctx)
			executionDuration.WithLabelValues(ctx.OperationName).Observe(time.Since(start).Seconds())

			outcome := "success"
			switch {
			case err != nil:
				outcome = "error"
			case res != nil && !res.Success:
				outcome = "rejected"
			}
			executionsTotal.WithLabelValues(ctx.OperationName, outcome).Inc()
			return res, err
		}
	}
}
