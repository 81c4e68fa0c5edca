package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(guardRequestsTotal) }

var guardRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "redis_guard_requests_total",
		Help: "Tracks outcomes of redis-backed guards (proof replay, refund lock, rate limit).",
	},
	[]string{"guard", "result"}, // e.g., guard="proof", result="duplicate"
)

func IncGuard(guard, result string) {
	guardRequestsTotal.WithLabelValues(norm(guard), norm(result)).Inc()
}

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Tracks read-through cache hits and misses.",
	},
	[]string{"cache", "result"},
)

func init() { register(cacheRequestsTotal) }

func IncCacheRequest(cache, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cache), norm(result)).Inc()
}
