package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		refundTransitionsTotal,
		refundTransfersTotal,
		refundedAtomicTotal,
	)
}

var (
	// to: pending|approved|completed
	refundTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_transitions_total",
			Help: "Refund status transitions by target status and source (worker|admin).",
		},
		[]string{"to", "source"},
	)

	// result: ok|error|lost_race|locked
	refundTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_transfers_total",
			Help: "On-chain refund transfer attempts by result.",
		},
		[]string{"result"},
	)

	refundedAtomicTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refunded_atomic_total",
			Help: "Refunded amount in atomic units.",
		},
	)
)

func IncRefundTransition(to, source string) {
	refundTransitionsTotal.WithLabelValues(norm(to), norm(source)).Inc()
}

func IncRefundTransfer(result string) {
	refundTransfersTotal.WithLabelValues(norm(result)).Inc()
}

func AddRefunded(amount int64) {
	refundedAtomicTotal.Add(float64(amount))
}
