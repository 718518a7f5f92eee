// Package metrics holds the Prometheus metrics of the jobfeed service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all jobfeed metrics.
	Namespace = "jobfeed"

	// Subsystem is the subsystem for cycle metrics.
	Subsystem = "cycle"
)

// Metrics holds the cycle metrics.
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	CycleRunning       prometheus.Gauge
	SubQueryFailures   *prometheus.CounterVec
	PublishedRecords   prometheus.Gauge
	StageRecords       *prometheus.GaugeVec
	SinkFailuresTotal  *prometheus.CounterVec
	LastSuccessSeconds prometheus.Gauge
}

// New creates and registers all metrics on reg. A nil reg means the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "triggers_total",
			Help:      "Triggers by reason and outcome (completed, failed, already_running)",
		}, []string{"reason", "outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "duration_seconds",
			Help:      "Duration of executed cycles in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		}),
		CycleRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "running",
			Help:      "1 while a cycle is in progress",
		}),
		SubQueryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "subquery_failures_total",
			Help:      "Failed or timed-out sub-query fetches",
		}, []string{"location"}),
		PublishedRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "published_records",
			Help:      "Record count of the currently published artifact",
		}),
		StageRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "stage_records",
			Help:      "Listings surviving each pipeline stage in the last cycle",
		}, []string{"stage"}),
		SinkFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "sink_failures_total",
			Help:      "Artifact sink write failures",
		}, []string{"sink"}),
		LastSuccessSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle",
		}),
	}
}
