package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records API latency, shared across all handlers.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "openlabels",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	},
	[]string{"method", "path", "status"},
)

// JobsEnqueuedTotal counts queue inserts by task type.
var JobsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "queue",
		Name:      "jobs_enqueued_total",
		Help:      "Total number of jobs enqueued, by task type.",
	},
	[]string{"task_type"},
)

// JobsCompletedTotal counts queue completions by task type and outcome.
var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "queue",
		Name:      "jobs_completed_total",
		Help:      "Total number of jobs that reached a terminal state.",
	},
	[]string{"task_type", "outcome"},
)

// JobsReclaimedTotal counts rows the reclaimer returned to pending.
var JobsReclaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "queue",
		Name:      "jobs_reclaimed_total",
		Help:      "Total number of queue rows reclaimed from expired leases.",
	},
)

// FilesScannedTotal counts files processed by the detection pipeline.
var FilesScannedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "scan",
		Name:      "files_scanned_total",
		Help:      "Total number of files scanned, by adapter kind.",
	},
	[]string{"adapter_kind"},
)

// EntitiesDetectedTotal counts detected entities by type and pipeline stage.
var EntitiesDetectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "detection",
		Name:      "entities_detected_total",
		Help:      "Total number of entities detected, by type and stage.",
	},
	[]string{"entity_type", "stage"},
)

// EventsHarvestedTotal counts access events persisted, by provider.
var EventsHarvestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "harvest",
		Name:      "events_total",
		Help:      "Total number of access events harvested, by provider.",
	},
	[]string{"provider"},
)

// EventsDroppedTotal counts events dropped due to buffer overflow.
var EventsDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "harvest",
		Name:      "events_dropped_total",
		Help:      "Total number of stream events dropped due to buffer overflow.",
	},
)

// CatalogFlushRowsTotal counts rows written to the columnar catalog.
var CatalogFlushRowsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "catalog",
		Name:      "flush_rows_total",
		Help:      "Total number of rows flushed to the catalog, by table.",
	},
	[]string{"table"},
)

// SIEMExportedTotal counts records exported per sink.
var SIEMExportedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "siem",
		Name:      "exported_total",
		Help:      "Total number of records exported, by sink and outcome.",
	},
	[]string{"sink", "outcome"},
)

// RemediationActionsTotal counts remediation actions applied, by kind
// and outcome.
var RemediationActionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "openlabels",
		Subsystem: "remediation",
		Name:      "actions_total",
		Help:      "Total number of remediation actions applied, by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)

// All returns all openlabels-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsEnqueuedTotal,
		JobsCompletedTotal,
		JobsReclaimedTotal,
		FilesScannedTotal,
		EntitiesDetectedTotal,
		EventsHarvestedTotal,
		EventsDroppedTotal,
		CatalogFlushRowsTotal,
		SIEMExportedTotal,
		RemediationActionsTotal,
	}
}

// NewMetricsRegistry builds a Prometheus registry with process/Go runtime
// collectors plus the supplied application collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	reg.MustRegister(prometheus.NewGoCollector())
	for _, c := range extra {
		reg.MustRegister(c)
	}
	reg.MustRegister(HTTPRequestDuration)
	return reg
}
