// Package telemetry wires Prometheus metrics and an OpenTelemetry
// tracer provider for the control loop, adapted from the teacher's
// telemetry package for this daemon's domain.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FreeBytes reports the most recently sampled free space on the
	// monitored mount.
	FreeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "diskwatchd_free_bytes",
		Help: "Free bytes on the monitored mount at last sample.",
	})

	// CurrentLevel reports the current severity level as an integer
	// (ok=0 .. kill=6), matching internal/level.Level's ordering.
	CurrentLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "diskwatchd_level",
		Help: "Current severity level (0=ok .. 6=kill).",
	})

	// FillRateGBPerMin reports the most recently computed fill rate.
	FillRateGBPerMin = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "diskwatchd_fill_rate_gb_per_min",
		Help: "Most recently estimated free-space consumption rate, in GB/min.",
	})

	// ActionsTotal counts signals sent, by level.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diskwatchd_actions_total",
			Help: "Total number of signals sent to writer processes, by level.",
		},
		[]string{"level"},
	)

	// ResumesTotal counts processes successfully resumed.
	ResumesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "diskwatchd_resumes_total",
		Help: "Total number of processes resumed from the paused state.",
	})

	// IterationDuration tracks how long one control-loop iteration takes.
	IterationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "diskwatchd_iteration_seconds",
		Help:    "Duration of one control-loop iteration.",
		Buckets: prometheus.DefBuckets,
	})
)
