package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "agent_engine"

// Metrics owns a private Prometheus registry and every engine metric.
// All methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration prometheus.Histogram
	stageVisitsTotal   *prometheus.CounterVec
	stageErrorsTotal   *prometheus.CounterVec
	collaboratorCalls  *prometheus.CounterVec
	policyChecksTotal  *prometheus.CounterVec
	violationsTotal    prometheus.Counter
	ruleLoadErrors     *prometheus.CounterVec
	ruleReloadsTotal   *prometheus.CounterVec
	eventsDropped      *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics. A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invocations_total",
			Help:      "Total number of pipeline invocations by outcome",
		}, []string{"status"}),
		invocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "invocation_duration_seconds",
			Help:      "Wall-clock duration of pipeline invocations",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		stageVisitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stage_visits_total",
			Help:      "Total number of pipeline stage visits",
		}, []string{"stage"}),
		stageErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stage_errors_total",
			Help:      "Total number of pipeline stages that failed",
		}, []string{"stage"}),
		collaboratorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "collaborator_calls_total",
			Help:      "Total number of collaborator calls by outcome",
		}, []string{"collaborator", "status"}),
		policyChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "policy_checks_total",
			Help:      "Total number of policy validations by result",
		}, []string{"result"}),
		violationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "policy_violations_total",
			Help:      "Total number of policy violations reported",
		}),
		ruleLoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rule_load_errors_total",
			Help:      "Total number of rule sources that failed to load",
		}, []string{"category"}),
		ruleReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rule_reloads_total",
			Help:      "Total number of rule directory re-checks triggered by file changes",
		}, []string{"result"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_dropped_total",
			Help:      "Total number of unit events dropped because the buffer was full",
		}, []string{"unit"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.stageVisitsTotal,
		m.stageErrorsTotal,
		m.collaboratorCalls,
		m.policyChecksTotal,
		m.violationsTotal,
		m.ruleLoadErrors,
		m.ruleReloadsTotal,
		m.eventsDropped,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// RecordInvocation records one finished invocation. status is success, error or rejected.
func (m *Metrics) RecordInvocation(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.invocationsTotal.WithLabelValues(status).Inc()
	m.invocationDuration.Observe(duration.Seconds())
}

// RecordStageVisit counts one visit of a pipeline stage
func (m *Metrics) RecordStageVisit(stage string) {
	if m == nil {
		return
	}
	m.stageVisitsTotal.WithLabelValues(stage).Inc()
}

// RecordStageError counts one failed pipeline stage
func (m *Metrics) RecordStageError(stage string) {
	if m == nil {
		return
	}
	m.stageErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordCollaboratorCall counts one collaborator call
func (m *Metrics) RecordCollaboratorCall(collaborator string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.collaboratorCalls.WithLabelValues(collaborator, status).Inc()
}

// RecordPolicyCheck counts one validation and its violations
func (m *Metrics) RecordPolicyCheck(violations int) {
	if m == nil {
		return
	}
	result := "valid"
	if violations > 0 {
		result = "invalid"
	}
	m.policyChecksTotal.WithLabelValues(result).Inc()
	m.violationsTotal.Add(float64(violations))
}

// RecordRuleLoadError counts a rule source that could not be loaded
func (m *Metrics) RecordRuleLoadError(category string) {
	if m == nil {
		return
	}
	m.ruleLoadErrors.WithLabelValues(category).Inc()
}

// RecordRuleReload counts one watcher-triggered re-check
func (m *Metrics) RecordRuleReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "invalid"
	}
	m.ruleReloadsTotal.WithLabelValues(result).Inc()
}

// RecordEventDropped counts an event log entry dropped on a full buffer
func (m *Metrics) RecordEventDropped(unit string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(unit).Inc()
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
