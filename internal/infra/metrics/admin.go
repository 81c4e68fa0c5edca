package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(adminActionsTotal) }

var adminActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_actions_total",
		Help: "Tracks admin API calls.",
	},
	[]string{"action", "status"}, // status: 'ok', 'unauthorized', 'conflict', 'error'
)

func IncAdminAction(action, status string) {
	adminActionsTotal.WithLabelValues(norm(action), norm(status)).Inc()
}
