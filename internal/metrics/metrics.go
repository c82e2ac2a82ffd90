package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hourlyagg_fetch_total",
			Help: "Total source fetch attempts",
		},
		[]string{"scheme", "status"},
	)

	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hourlyagg_fetch_latency_seconds",
			Help:    "Source fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)

	HoursAggregated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hourlyagg_hours_aggregated_total",
			Help: "Total hourly records folded into daily aggregates",
		},
	)

	DaysWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hourlyagg_days_written_total",
			Help: "Total daily rows written to parquet",
		},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hourlyagg_pipeline_runs_total",
			Help: "Pipeline runs by result",
		},
		[]string{"result"},
	)
)

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
