package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, refundBacklog) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	refundBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "refund_backlog",
			Help: "Refunds seen in the last worker pass, by refund status.",
		},
		[]string{"status"},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func SetRefundBacklog(status string, n int) {
	refundBacklog.WithLabelValues(norm(status)).Set(float64(n))
}
