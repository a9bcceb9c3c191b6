// Package metrics exposes the Prometheus instrumentation shared by the
// orchestrator, platform pipelines and warehouse sink.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adflow_build_info",
			Help: "Build information of the adflow orchestrator",
		},
		[]string{"version", "commit", "date"},
	)

	PlatformRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adflow_platform_run_total",
			Help: "Total number of platform pipeline runs by terminal status",
		},
		[]string{"platform", "status"},
	)

	PlatformRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adflow_platform_run_duration_seconds",
			Help:    "Duration of a platform pipeline run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"platform"},
	)

	PlatformRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adflow_platform_retry_total",
			Help: "Total number of retry attempts issued for a platform",
		},
		[]string{"platform"},
	)

	WarehouseLoadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adflow_warehouse_load_total",
			Help: "Total number of warehouse load operations by mode and status",
		},
		[]string{"table", "mode", "status"},
	)

	WarehouseLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adflow_warehouse_load_duration_seconds",
			Help:    "Duration of a warehouse load operation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"table", "mode"},
	)

	WarehouseRowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adflow_warehouse_rows_loaded_total",
			Help: "Total number of rows written to the warehouse",
		},
		[]string{"table", "mode"},
	)

	OrchestratorRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adflow_orchestrator_run_duration_seconds",
			Help:    "Duration of a full orchestrator run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	SchedulerGroupSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adflow_scheduler_group_size",
			Help:    "Number of platforms scheduled together in one execution group",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)
)
