// Package observability exposes Prometheus metrics for extraction runs, LLM
// calls and the HTTP API.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service. Each collector owns
// its registry, so tests can create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	StageDuration *prometheus.HistogramVec
	Runs          *prometheus.CounterVec
	RunDuration   prometheus.Histogram

	LLMCalls    *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_stage_duration_seconds",
				Help:      "Duration of extraction pipeline stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extraction_runs_total",
				Help:      "Total number of extraction runs",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extraction_run_duration_seconds",
				Help:      "Duration of whole extraction runs",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		LLMCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Total number of LLM calls",
			},
			[]string{"provider", "outcome"},
		),
		LLMDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_call_duration_seconds",
				Help:      "LLM call latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"provider"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		c.StageDuration,
		c.Runs,
		c.RunDuration,
		c.LLMCalls,
		c.LLMDuration,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveStage(stage, status string, d time.Duration) {
	c.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

func (c *Collector) ObserveRun(status string, d time.Duration) {
	c.Runs.WithLabelValues(status).Inc()
	c.RunDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveLLMCall(provider string, success bool, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	c.LLMCalls.WithLabelValues(provider, outcome).Inc()
	c.LLMDuration.WithLabelValues(provider).Observe(latency.Seconds())
}

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
