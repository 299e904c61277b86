package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(backendCallsLatencyMs, estimatorDegradedTotal) }

var backendCallsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "render_backend_calls_latency_ms",
		Help:    "Render backend call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
	},
	[]string{"call", "success"},
)

var estimatorDegradedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "estimator_degraded_total",
		Help: "Requests degraded to the lowest variant because no tier fit the budget.",
	},
)

func ObserveBackendCall(call string, latencyMs int, success bool) {
	backendCallsLatencyMs.WithLabelValues(norm(call), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncEstimatorDegraded() { estimatorDegradedTotal.Inc() }
