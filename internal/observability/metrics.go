package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chat request metrics
	activeChats = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gh_agent_active_chats",
		Help: "Number of chat requests currently streaming",
	})

	totalChats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_agent_chats_total",
		Help: "Total number of chat requests processed",
	}, []string{"transport", "outcome"})

	chatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gh_agent_chat_duration_seconds",
		Help:    "Duration of streamed chat requests in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	// Stream translator metrics
	streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_agent_stream_events_total",
		Help: "Events written to clients by kind",
	}, []string{"kind"})

	streamSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_agent_stream_skipped_total",
		Help: "Upstream events the translator ignored or failed to translate",
	}, []string{"reason"})

	upstreamFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_agent_upstream_failures_total",
		Help: "Agent stream failures by whether a provider error shape was recognized",
	}, []string{"recognized"})

	// Tool metrics
	toolInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_agent_tool_invocations_total",
		Help: "Total number of tool invocations",
	}, []string{"tool", "status"})

	toolLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gh_agent_tool_latency_seconds",
		Help:    "Tool execution latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"tool"})

	// Model metrics
	modelRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_agent_model_requests_total",
		Help: "Total number of chat model requests",
	}, []string{"provider", "status"})

	modelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gh_agent_model_latency_seconds",
		Help:    "Chat model latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"provider"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gh_agent_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gh_agent_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// ChatMetrics tracks metrics for a single chat request
type ChatMetrics struct {
	transport string
	startTime time.Time
}

// NewChatMetrics starts tracking a chat request on the given transport
func NewChatMetrics(transport string) *ChatMetrics {
	activeChats.Inc()
	return &ChatMetrics{
		transport: transport,
		startTime: time.Now(),
	}
}

// End records the end of the chat request with its outcome
func (m *ChatMetrics) End(outcome string) {
	activeChats.Dec()
	totalChats.WithLabelValues(m.transport, outcome).Inc()
	chatDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStreamEvent counts an event written to a client
func RecordStreamEvent(kind string) {
	streamEvents.WithLabelValues(kind).Inc()
}

// RecordStreamSkipped counts an upstream event that produced no output
func RecordStreamSkipped(reason string) {
	streamSkipped.WithLabelValues(reason).Inc()
}

// RecordUpstreamFailure counts a fatal agent stream failure
func RecordUpstreamFailure(recognized bool) {
	label := "false"
	if recognized {
		label = "true"
	}
	upstreamFailures.WithLabelValues(label).Inc()
}

// RecordToolInvocation records a finished tool call
func RecordToolInvocation(tool string, success bool, elapsed time.Duration) {
	toolInvocations.WithLabelValues(tool, status(success)).Inc()
	toolLatency.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordModelRequest records a finished chat model call
func RecordModelRequest(provider string, success bool, elapsed time.Duration) {
	modelRequests.WithLabelValues(provider, status(success)).Inc()
	modelLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
