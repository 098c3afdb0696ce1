// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rowguard_runs_total",
			Help: "Total pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	RecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowguard_records_processed_total",
			Help: "Total records evaluated across all runs",
		},
	)

	RulesFaulted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowguard_rule_faults_total",
			Help: "Total rules that faulted (compile or evaluation)",
		},
	)

	ViolationsFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowguard_violations_found_total",
			Help: "Total violations detected by rule evaluation",
		},
	)

	ViolationsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowguard_violations_written_total",
			Help: "Total violations durably written to the sink",
		},
	)

	ViolationsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowguard_violations_rejected_total",
			Help: "Total violations the sink refused after retries",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowguard_evaluation_duration_seconds",
			Help:    "Duration of rule evaluation per run",
			Buckets: prometheus.DefBuckets,
		},
	)

	SinkWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rowguard_sink_write_duration_seconds",
			Help:    "Duration of sink write attempts including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	SinkRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rowguard_sink_retries_total",
			Help: "Total sink write retry attempts",
		},
	)
)
