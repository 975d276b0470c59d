package metrics

import "github.com/prometheus/client_golang/prometheus"

// Answer generation Prometheus metrics.
var (
	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consulta",
			Name:      "generation_requests_total",
			Help:      "Total number of answer generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "consulta",
			Name:      "generation_request_duration_seconds",
			Help:      "Answer generation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	GenerationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consulta",
			Name:      "generation_errors_total",
			Help:      "Total answer generation errors",
		},
		[]string{"provider", "error_type"},
	)
)

var genMetricsRegistered bool

// RegisterGenerationMetrics registers Prometheus generation metrics. Must be called once from main.
func RegisterGenerationMetrics() {
	if genMetricsRegistered {
		return
	}
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	prometheus.MustRegister(GenerationErrorsTotal)
	genMetricsRegistered = true
}
