// Package metrics exposes Prometheus instrumentation for the dispatch server.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

// Collector owns a private registry so that several collectors (one per test,
// for instance) never collide on the global one.
type Collector struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	sessionsTotal  *prometheus.CounterVec
	sessionsActive prometheus.Gauge

	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
}

// NewCollector registers every dispatch metric under namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.Named("metrics"),
	}

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds, including the full event stream",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	c.sessionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Browser session bootstrap attempts by outcome",
		},
		[]string{"outcome"},
	)

	c.sessionsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Browser sessions currently open",
		},
	)

	c.executionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Dispatched commands by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	c.executionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time from navigation start to the command result",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"mode"},
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(c.logger),
	})
}

// RecordHTTPRequest counts one finished request. route is the matched route
// pattern, never the raw path.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSessionInit counts a bootstrap attempt. A successful one also raises the
// active gauge until SessionClosed is called.
func (c *Collector) RecordSessionInit(err error) {
	outcome := outcomeOf(err)
	c.sessionsTotal.WithLabelValues(outcome).Inc()
	if err == nil {
		c.sessionsActive.Inc()
	}
}

// SessionClosed lowers the active session gauge.
func (c *Collector) SessionClosed() {
	c.sessionsActive.Dec()
}

// ObserveExecution records a dispatcher outcome.
func (c *Collector) ObserveExecution(mode schemas.Mode, err error, seconds float64) {
	m := string(mode)
	if !mode.Valid() {
		m = "invalid"
	}
	c.executionsTotal.WithLabelValues(m, outcomeOf(err)).Inc()
	c.executionDuration.WithLabelValues(m).Observe(seconds)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}
