// Package metrics exposes Prometheus collectors for HTTP traffic and
// friendship activity.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/friendhub/server/plugin/hook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "social"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
	jobRuns      *prometheus.CounterVec
	panics       *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "route"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "domain",
			Name:      "events_total",
			Help:      "Domain events emitted, by event name and detail action.",
		}, []string{"event", "action"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Background job runs, by job name and outcome.",
		}, []string{"job", "success"}),
		panics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Handler panics recovered, by route pattern.",
		}, []string{"route"}),
	}
	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.events,
		m.jobRuns,
		m.panics,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// InFlight adjusts the in-flight gauge.
func (m *Metrics) InFlight(delta float64) {
	m.httpInFlight.Add(delta)
}

// RecordPanic counts one recovered handler panic.
func (m *Metrics) RecordPanic(route string) {
	m.panics.WithLabelValues(route).Inc()
}

// RecordJob counts one scheduler job run.
func (m *Metrics) RecordJob(job string, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

// Subscribe counts every domain event emitted on hc.
func (m *Metrics) Subscribe(hc *hook.HookCenter) {
	hc.Register(hook.Wildcard, 200, "metrics", func(_ context.Context, ev *hook.Event) error {
		action, _ := ev.Detail["action"].(string)
		m.events.WithLabelValues(ev.Name, action).Inc()
		return nil
	})
}
