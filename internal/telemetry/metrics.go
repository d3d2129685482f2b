package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ztc"

// Pipeline stages reported in ztc_hosts_total.
const (
	StageEnrich    = "enrich"
	StageAudit     = "audit"
	StageCorrelate = "correlate"
	StageFix       = "fix"
)

// Outcomes reported in ztc_hosts_total.
const (
	OutcomeOK      = "ok"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// RunMetrics collects counters for a single ztc invocation. The registry is
// private to the run and is flushed to a node_exporter textfile at the end.
type RunMetrics struct {
	registry *prometheus.Registry

	hosts         *prometheus.CounterVec
	auditDuration prometheus.Histogram
	fleetScore    *prometheus.GaugeVec
	fleetHosts    prometheus.Gauge
	lastRun       prometheus.Gauge
}

// NewRunMetrics registers the run metrics on a fresh registry.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		registry: reg,
		hosts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hosts_total",
			Help:      "Hosts processed per pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		auditDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "audit_duration_seconds",
			Help:      "Duration of single Vulners audit calls.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		fleetScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "fleet_score",
			Help:      "Fleet CVSS score statistics from the last run.",
		}, []string{"stat"}),
		fleetHosts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "fleet_hosts",
			Help:      "Hosts that reached correlation in the last run.",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
}

// Host counts one host outcome for a stage.
func (m *RunMetrics) Host(stage, outcome string) {
	m.hosts.WithLabelValues(stage, outcome).Inc()
}

// ObserveAudit records the duration of one audit call.
func (m *RunMetrics) ObserveAudit(d time.Duration) {
	m.auditDuration.Observe(d.Seconds())
}

// SetFleet publishes the fleet aggregate.
func (m *RunMetrics) SetFleet(hosts int, median, mean, max, min float64) {
	m.fleetHosts.Set(float64(hosts))
	m.fleetScore.WithLabelValues("median").Set(median)
	m.fleetScore.WithLabelValues("mean").Set(mean)
	m.fleetScore.WithLabelValues("max").Set(max)
	m.fleetScore.WithLabelValues("min").Set(min)
}

// WriteTextfile stamps the finish time and writes all metrics to path in
// the Prometheus text format. An empty path is a no-op.
func (m *RunMetrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	m.lastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Registry exposes the underlying gatherer.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}
