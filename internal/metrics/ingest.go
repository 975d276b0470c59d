package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingest pipeline Prometheus metrics.
var (
	IngestRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consulta",
			Name:      "ingest_records_total",
			Help:      "Total page records consumed by the ingest pipeline",
		},
		[]string{"collection"},
	)

	IngestChunksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consulta",
			Name:      "ingest_chunks_total",
			Help:      "Total chunks produced by the ingest pipeline",
		},
		[]string{"collection", "status"}, // "indexed" / "failed"
	)

	IngestBatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "consulta",
			Name:      "ingest_batch_duration_seconds",
			Help:      "Duration of one embed-and-store batch",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"collection"},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers Prometheus ingest metrics. Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestRecordsTotal)
	prometheus.MustRegister(IngestChunksTotal)
	prometheus.MustRegister(IngestBatchDuration)
	ingestMetricsRegistered = true
}
