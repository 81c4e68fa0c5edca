package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		settlementsTotal,
	)
}

var (
	// status: required|invalid|accepted|duplicate
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Intake payment outcomes by automation and status.",
		},
		[]string{"automation", "status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_settled_atomic_total",
			Help: "Settled amount in atomic units, labeled by automation.",
		},
		[]string{"automation"},
	)

	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Settlement calls after completed executions, by result.",
		},
		[]string{"result"}, // 'settled', 'failed', 'unrecorded'
	)
)

func IncPayment(automation, status string) {
	paymentsTotal.WithLabelValues(norm(automation), norm(status)).Inc()
}

func AddSettledRevenue(automation string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(automation)).Add(float64(amount))
}

func IncSettlement(result string) {
	settlementsTotal.WithLabelValues(norm(result)).Inc()
}
