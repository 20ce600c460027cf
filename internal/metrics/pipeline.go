// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus instruments of the guide pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hdhr_xmltv"

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by result and failure kind",
	}, []string{"result", "kind"}) // result=success|failure

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a pipeline run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	devicesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "devices_discovered",
		Help:      "Tuners contributing a credential in the last run",
	})

	guideEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "guide_entries",
		Help:      "Programme entries written in the last successful run",
	})

	guideEntriesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guide_entries_dropped_total",
		Help:      "Guide entries discarded during normalization (unknown channel, invalid, overlap)",
	})

	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_requests_total",
		Help:      "HTTP requests to the guide service by strategy and outcome",
	}, []string{"strategy", "outcome"})

	artifactBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "artifact_bytes",
		Help:      "Size of the last committed XMLTV artifact",
	})

	artifactLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "artifact_last_success_timestamp_seconds",
		Help:      "Unix time of the last committed XMLTV artifact",
	})

	schedulerTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduler_ticks_skipped_total",
		Help:      "Scheduled ticks skipped because a run was still active",
	})
)

// RecordRun records the end of a pipeline run. kind is empty on success.
func RecordRun(success bool, kind string, d time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	if kind == "" {
		kind = "none"
	}
	runsTotal.WithLabelValues(result, kind).Inc()
	runDuration.Observe(d.Seconds())
}

// RecordDevices sets the number of discovered devices.
func RecordDevices(n int) {
	devicesDiscovered.Set(float64(n))
}

// RecordGuide records the entry count of a document and its discarded entries.
func RecordGuide(entries, dropped int) {
	guideEntries.Set(float64(entries))
	if dropped > 0 {
		guideEntriesDropped.Add(float64(dropped))
	}
}

// IncFetchRequest counts one guide HTTP request.
func IncFetchRequest(strategy, outcome string) {
	fetchRequestsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordArtifact records a committed artifact.
func RecordArtifact(size int, at time.Time) {
	artifactBytes.Set(float64(size))
	artifactLastSuccess.Set(float64(at.Unix()))
}

// IncTicksSkipped counts a scheduler tick skipped due to an active run.
func IncTicksSkipped() {
	schedulerTicksSkipped.Inc()
}
