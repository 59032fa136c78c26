package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(backendCallLatencyMs) }

var backendCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "backend_calls_latency_ms",
		Help:    "Generation backend call latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
	},
	[]string{"call", "success"}, // call: 'submit' | 'poll'
)

func ObserveBackendCall(call string, latencyMs int, success bool) {
	backendCallLatencyMs.WithLabelValues(norm(call), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
