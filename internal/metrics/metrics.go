// Package metrics exposes the Prometheus collectors agentcored
// registers at startup and serves from /metrics. Grounded on
// internal/observability/metrics.go's promauto-constructed *Metrics
// struct with one method per recorded event, narrowed to the
// components this spec actually has (provider calls, tool executions,
// sessions, HTTP, the event bus) rather than the teacher's channel/
// webhook/database surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector agentcored reports.
type Metrics struct {
	// LLMRequestDuration measures provider HTTP call latency.
	// Labels: provider, model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider calls by outcome.
	// Labels: provider, model, status (success|error).
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, kind (input|output).
	LLMTokensUsed *prometheus.CounterVec

	// ToolExecutionDuration measures tool invocation latency.
	// Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool invocations by outcome.
	// Labels: tool_name, status (success|error|timeout).
	ToolExecutionCounter *prometheus.CounterVec

	// ErrorCounter tracks typed errors by component and kind.
	// Labels: component, error_kind.
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is the current number of open sessions.
	ActiveSessions prometheus.Gauge

	// ActiveRuns is the current number of in-flight agent runs.
	ActiveRuns prometheus.Gauge

	// HTTPRequestDuration measures HTTP handler latency.
	// Labels: method, path, status_code.
	HTTPRequestDuration *prometheus.HistogramVec

	// EventBusDropped counts events dropped for a full subscriber buffer.
	EventBusDropped prometheus.Counter

	// SkillReloadCounter counts hot-reload outcomes.
	// Labels: status (success|error).
	SkillReloadCounter *prometheus.CounterVec
}

// New constructs and registers every collector with reg. Pass
// prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions between
// parallel test binaries registering the same metric names.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcored_llm_request_duration_seconds",
				Help:    "Duration of provider chat requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcored_llm_requests_total",
				Help: "Total provider chat requests by outcome",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcored_llm_tokens_total",
				Help: "Total tokens exchanged with a provider",
			},
			[]string{"provider", "model", "kind"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcored_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcored_tool_executions_total",
				Help: "Total tool executions by outcome",
			},
			[]string{"tool_name", "status"},
		),
		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcored_errors_total",
				Help: "Total typed errors by component and kind",
			},
			[]string{"component", "error_kind"},
		),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentcored_active_sessions",
			Help: "Current number of open sessions",
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentcored_active_runs",
			Help: "Current number of in-flight agent runs",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcored_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		EventBusDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentcored_eventbus_dropped_total",
			Help: "Events dropped because a subscriber's buffer was full",
		}),
		SkillReloadCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcored_skill_reload_total",
				Help: "Total hot-reload attempts by outcome",
			},
			[]string{"status"},
		),
	}
}

// RecordLLMRequest records one completed provider call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, seconds float64, inputTokens, outputTokens int) {
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(seconds)
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordToolExecution records one completed tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, seconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(seconds)
}

// RecordError increments the error counter for component/kind.
func (m *Metrics) RecordError(component, kind string) {
	m.ErrorCounter.WithLabelValues(component, kind).Inc()
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(seconds)
}

// RecordSkillReload records one hot-reload attempt's outcome.
func (m *Metrics) RecordSkillReload(status string) {
	m.SkillReloadCounter.WithLabelValues(status).Inc()
}
