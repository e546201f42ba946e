// Package metrics exposes the Orchestrator's prometheus instrumentation
// and the HTTP server that serves it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters and gauges the Orchestrator updates as it
// fans out per-entity pipelines.
type Metrics struct {
	BatchesCommitted  *prometheus.CounterVec
	BytesReferenced   *prometheus.CounterVec
	ConflictsRetried  *prometheus.CounterVec
	EntitiesInFlight  prometheus.Gauge
	EntitiesCompleted *prometheus.CounterVec
}

// New registers and returns a fresh Metrics against the default
// registerer.
func New() *Metrics {
	return &Metrics{
		BatchesCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cda_deltasync",
			Name:      "batches_committed_total",
			Help:      "Number of Delta commits written, by table.",
		}, []string{"table"}),
		BytesReferenced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cda_deltasync",
			Name:      "bytes_referenced_total",
			Help:      "Sum of add.size across committed actions, by table.",
		}, []string{"table"}),
		ConflictsRetried: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cda_deltasync",
			Name:      "commit_conflicts_retried_total",
			Help:      "Number of conditional-put conflicts that triggered a re-plan, by table.",
		}, []string{"table"}),
		EntitiesInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "cda_deltasync",
			Name:      "entities_in_flight",
			Help:      "Number of entity pipelines currently running.",
		}),
		EntitiesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cda_deltasync",
			Name:      "entities_completed_total",
			Help:      "Number of entity pipelines finished, by table and outcome.",
		}, []string{"table", "outcome"}),
	}
}

// EntityStarted records one more in-flight entity pipeline.
func (m *Metrics) EntityStarted() {
	m.EntitiesInFlight.Inc()
}

// EntityCompleted records one entity pipeline finishing, successfully or
// not, and releases its in-flight slot.
func (m *Metrics) EntityCompleted(table string, ok bool) {
	m.EntitiesInFlight.Dec()
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.EntitiesCompleted.WithLabelValues(table, outcome).Inc()
}

// BatchCommitted records one successful commit and the bytes its add
// actions reference.
func (m *Metrics) BatchCommitted(table string, bytesReferenced int64) {
	m.BatchesCommitted.WithLabelValues(table).Inc()
	m.BytesReferenced.WithLabelValues(table).Add(float64(bytesReferenced))
}

// ConflictRetried records one lost conditional-put race for table.
func (m *Metrics) ConflictRetried(table string) {
	m.ConflictsRetried.WithLabelValues(table).Inc()
}
