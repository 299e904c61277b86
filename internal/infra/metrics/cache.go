package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, cacheEvictionsTotal, cacheBytes) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generation_cache_requests_total",
		Help: "Cache lookups by result (hit/miss/ineligible).",
	},
	[]string{"result"},
)

var cacheEvictionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "generation_cache_evictions_total",
		Help: "Entries evicted by the LRU policy.",
	},
)

var cacheBytes = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "generation_cache_bytes",
		Help: "Total bytes referenced by cache entries.",
	},
)

func IncCacheRequest(result string) {
	cacheRequestsTotal.WithLabelValues(norm(result)).Inc()
}

func IncCacheEvictions(n int) { cacheEvictionsTotal.Add(float64(n)) }

func SetCacheBytes(b int64) { cacheBytes.Set(float64(b)) }
