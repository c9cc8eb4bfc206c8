// Package metrics is the component-scoped prometheus handle recorded to by
// the Pipeline and by the Orchestrator's duplicate scan. A Handle is always
// constructed once by the Orchestrator and passed by reference; nothing
// here reaches for a package-level global registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handle bundles the instruments the catalog pipeline records to.
type Handle struct {
	registry *prometheus.Registry

	hashLookups     *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	duplicateGroups *prometheus.CounterVec
}

// New registers every instrument against a fresh registry and returns the
// Handle. Call Handler to expose it over HTTP.
func New() *Handle {
	reg := prometheus.NewRegistry()
	h := &Handle{
		registry: reg,
		hashLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hash_index_lookup_total",
			Help: "HashIndex lookups by result.",
		}, []string{"result"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_stage_failures_total",
			Help: "Pipeline stage failures by stage.",
		}, []string{"stage"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Current pipeline stage queue depth.",
		}, []string{"stage"}),
		duplicateGroups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duplicate_groups_total",
			Help: "Duplicate groups found by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(h.hashLookups, h.stageFailures, h.queueDepth, h.duplicateGroups)
	return h
}

// RecordHashLookup implements pipeline.MetricsRecorder.
func (h *Handle) RecordHashLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	h.hashLookups.WithLabelValues(result).Inc()
}

// RecordStageFailure implements pipeline.MetricsRecorder.
func (h *Handle) RecordStageFailure(stage string) {
	h.stageFailures.WithLabelValues(stage).Inc()
}

// SetQueueDepth implements pipeline.MetricsRecorder.
func (h *Handle) SetQueueDepth(stage string, depth int) {
	h.queueDepth.WithLabelValues(stage).Set(float64(depth))
}

// RecordDuplicateGroup counts one duplicate group of kind ("hash" or
// "title"); the Orchestrator calls it after each duplicate scan.
func (h *Handle) RecordDuplicateGroup(kind string) {
	h.duplicateGroups.WithLabelValues(kind).Inc()
}

// Handler returns the Prometheus text-exposition HTTP handler for this
// Handle's registry, mounted by the Orchestrator at GET /metrics.
func (h *Handle) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}
