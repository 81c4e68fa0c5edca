package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		executionsFinishedTotal,
		executionAttemptsTotal,
		executionClaimsTotal,
		executionDuration,
		workerIterationsTotal,
	)
}

var (
	executionsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "executions_finished_total",
			Help: "Executions that reached a terminal state, labeled by automation and status.",
		},
		[]string{"automation", "status"}, // 'completed', 'failed'
	)

	executionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_attempts_total",
			Help: "Workflow backend calls by automation and result.",
		},
		[]string{"automation", "result"}, // 'ok', 'error'
	)

	// result: won|lost
	executionClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_claims_total",
			Help: "pending→running claim attempts by outcome.",
		},
		[]string{"result"},
	)

	executionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execution_duration_seconds",
			Help:    "Wall-clock time from job creation to terminal state.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"automation", "status"},
	)

	workerIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_iterations_total",
			Help: "Worker loop iterations by worker and outcome.",
		},
		[]string{"worker", "outcome"}, // outcome: 'work', 'idle', 'error'
	)
)

func IncExecutionFinished(automation, status string, elapsed time.Duration) {
	executionsFinishedTotal.WithLabelValues(norm(automation), norm(status)).Inc()
	executionDuration.WithLabelValues(norm(automation), norm(status)).Observe(elapsed.Seconds())
}

func IncExecutionAttempt(automation string, ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	executionAttemptsTotal.WithLabelValues(norm(automation), result).Inc()
}

func IncExecutionClaim(won bool) {
	result := "lost"
	if won {
		result = "won"
	}
	executionClaimsTotal.WithLabelValues(result).Inc()
}

func IncWorkerIteration(worker, outcome string) {
	workerIterationsTotal.WithLabelValues(norm(worker), norm(outcome)).Inc()
}
