// Package metrics provides Prometheus metrics for the publisher and the operator API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultNamespace is used when none is configured
const DefaultNamespace = "publisher"

// Metrics holds all collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// Pass metrics
	PassesTotal      *prometheus.CounterVec
	LastPassUnixTime prometheus.Gauge

	// Job metrics
	JobsTotal          *prometheus.CounterVec
	JobsSkippedTotal   *prometheus.CounterVec
	JobDurationSeconds *prometheus.HistogramVec

	// Target metrics
	TargetsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
}

// New creates and registers all metrics
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.PassesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Total number of orchestrator passes",
		},
		[]string{"result"},
	)

	m.LastPassUnixTime = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time the last pass finished",
		},
	)

	m.JobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of committed jobs by final status and failure kind",
		},
		[]string{"status", "kind"},
	)

	m.JobsSkippedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_skipped_total",
			Help:      "Total number of jobs skipped during a pass",
		},
		[]string{"reason"},
	)

	m.JobDurationSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from claim to commit",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68min
		},
		[]string{"status"},
	)

	m.TargetsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_total",
			Help:      "Total number of platform uploads by outcome",
		},
		[]string{"platform", "outcome"},
	)

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of operator API requests",
		},
		[]string{"method", "route", "code"},
	)

	return m
}

// RecordPass counts a finished pass
func (m *Metrics) RecordPass(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PassesTotal.WithLabelValues(result).Inc()
	m.LastPassUnixTime.SetToCurrentTime()
}

// RecordJob counts a committed job. kind is empty for successful jobs.
func (m *Metrics) RecordJob(status, kind string, d time.Duration) {
	m.JobsTotal.WithLabelValues(status, kind).Inc()
	m.JobDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// RecordSkip counts a job left untouched in a pass
func (m *Metrics) RecordSkip(reason string) {
	m.JobsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordTarget counts one platform upload. outcome is "published" or the failure kind.
func (m *Metrics) RecordTarget(platform, outcome string) {
	m.TargetsTotal.WithLabelValues(platform, outcome).Inc()
}

// RecordHTTPRequest counts one operator API request
func (m *Metrics) RecordHTTPRequest(method, route string, code int) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Pushgateway
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
