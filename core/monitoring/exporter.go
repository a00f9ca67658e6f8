// Package monitoring exposes run, queue and admission occupancy as
// Prometheus metrics. The collector pulls a fresh snapshot from the
// manager on every scrape instead of keeping its own counters.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"train-orchestrator/core/manager"
	"train-orchestrator/core/models"
)

const MetricPrefix = "train_orchestrator_"

// SnapshotSource reports current orchestrator occupancy. The manager
// implements it.
type SnapshotSource interface {
	Snapshot() manager.Snapshot
}

var runsDesc = prometheus.NewDesc(
	MetricPrefix+"runs",
	"Number of known runs by state",
	[]string{"state"},
	nil,
)

var queueDepthDesc = prometheus.NewDesc(
	MetricPrefix+"queue_depth",
	"Number of runs waiting for a worker",
	nil,
	nil,
)

var globalSlotLimitDesc = prometheus.NewDesc(
	MetricPrefix+"global_slot_limit",
	"Configured global concurrency limit",
	nil,
	nil,
)

var globalSlotsInUseDesc = prometheus.NewDesc(
	MetricPrefix+"global_slots_in_use",
	"Global slots currently held by running jobs",
	nil,
	nil,
)

var admissionWaitingDesc = prometheus.NewDesc(
	MetricPrefix+"admission_waiting",
	"Runs blocked waiting for admission slots",
	nil,
	nil,
)

var tenantSlotsInUseDesc = prometheus.NewDesc(
	MetricPrefix+"tenant_slots_in_use",
	"Slots currently held, per tenant",
	[]string{"tenant"},
	nil,
)

var metricRecordsAppendedDesc = prometheus.NewDesc(
	MetricPrefix+"metric_records_appended_total",
	"Metric records appended to the sink since start",
	nil,
	nil,
)

var artifactsSavedDesc = prometheus.NewDesc(
	MetricPrefix+"artifacts_saved_total",
	"Model artifacts stored since start",
	nil,
	nil,
)

// RunInfoCollector implements prometheus.Collector over a SnapshotSource.
type RunInfoCollector struct {
	source SnapshotSource
}

// ExposeRunMetrics registers a collector for source with the default
// Prometheus registry and returns it.
func ExposeRunMetrics(source SnapshotSource) *RunInfoCollector {
	collector := &RunInfoCollector{source: source}
	prometheus.MustRegister(collector)
	return collector
}

func (c *RunInfoCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- runsDesc
	desc <- queueDepthDesc
	desc <- globalSlotLimitDesc
	desc <- globalSlotsInUseDesc
	desc <- admissionWaitingDesc
	desc <- tenantSlotsInUseDesc
	desc <- metricRecordsAppendedDesc
	desc <- artifactsSavedDesc
}

func (c *RunInfoCollector) Collect(metrics chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for _, state := range []models.RunState{
		models.StateQueued,
		models.StateRunning,
		models.StateCompleted,
		models.StateFailed,
	} {
		metrics <- prometheus.MustNewConstMetric(
			runsDesc, prometheus.GaugeValue, float64(snap.RunStates[state]), string(state))
	}

	metrics <- prometheus.MustNewConstMetric(
		queueDepthDesc, prometheus.GaugeValue, float64(snap.QueueDepth))
	metrics <- prometheus.MustNewConstMetric(
		globalSlotLimitDesc, prometheus.GaugeValue, float64(snap.Admission.GlobalLimit))
	metrics <- prometheus.MustNewConstMetric(
		globalSlotsInUseDesc, prometheus.GaugeValue, float64(snap.Admission.GlobalInUse))
	metrics <- prometheus.MustNewConstMetric(
		admissionWaitingDesc, prometheus.GaugeValue, float64(snap.Admission.Waiting))

	for tenant, held := range snap.Admission.TenantInUse {
		metrics <- prometheus.MustNewConstMetric(
			tenantSlotsInUseDesc, prometheus.GaugeValue, float64(held), tenant)
	}

	metrics <- prometheus.MustNewConstMetric(
		metricRecordsAppendedDesc, prometheus.CounterValue, float64(snap.MetricRecordsAppended))
	metrics <- prometheus.MustNewConstMetric(
		artifactsSavedDesc, prometheus.CounterValue, float64(snap.ArtifactsSaved))
}
