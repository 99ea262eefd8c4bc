// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the prediction
// service: request counters, prediction and index-build latency histograms,
// and per-namespace cache hit/miss counters. All operations are thread-safe
// via Prometheus's internal locking; metrics are exposed on /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace    = "edutwin"
	predictionSubsystem = "prediction"
)

// Metrics holds all Prometheus collectors for the prediction service.
type Metrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	RequestsTotal *prometheus.CounterVec

	// PredictionDurationSeconds measures end-to-end orchestrator latency
	// by model name.
	PredictionDurationSeconds *prometheus.HistogramVec

	// IndexBuildDurationSeconds measures cluster-index fits.
	IndexBuildDurationSeconds prometheus.Histogram

	// CacheResultsTotal counts cache lookups by namespace and result
	// (hit, miss).
	CacheResultsTotal *prometheus.CounterVec

	// EvaluationJobsActive tracks background evaluation jobs in flight.
	EvaluationJobsActive prometheus.Gauge

	// PredictionsWrittenTotal counts score rows written back, by source.
	PredictionsWrittenTotal *prometheus.CounterVec
}

// NewMetrics registers all collectors on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: predictionSubsystem,
			Name:      "requests_total",
			Help:      "API requests by endpoint and status.",
		}, []string{"endpoint", "status"}),

		PredictionDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: predictionSubsystem,
			Name:      "duration_seconds",
			Help:      "End-to-end prediction latency by model.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"model"}),

		IndexBuildDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: predictionSubsystem,
			Name:      "index_build_duration_seconds",
			Help:      "Cluster-index fit latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),

		CacheResultsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: predictionSubsystem,
			Name:      "cache_results_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"cache", "result"}),

		EvaluationJobsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: predictionSubsystem,
			Name:      "evaluation_jobs_active",
			Help:      "Background evaluation jobs currently running.",
		}),

		PredictionsWrittenTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: predictionSubsystem,
			Name:      "predictions_written_total",
			Help:      "Score rows written back, by source.",
		}, []string{"source"}),
	}
}

// DefaultMetrics is the singleton used by the service. Tests that need
// isolation construct their own registry-free fakes instead.
var DefaultMetrics *Metrics

// Init creates DefaultMetrics exactly once.
func Init() *Metrics {
	if DefaultMetrics == nil {
		DefaultMetrics = NewMetrics()
	}
	return DefaultMetrics
}

// RecordCacheResult is a nil-safe helper for engine call sites.
func RecordCacheResult(m *Metrics, cacheName string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheResultsTotal.WithLabelValues(cacheName, result).Inc()
}
