package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "threadline"
	subsystem = "engine"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "endpoint", "status"},
	)

	HubPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hub_published_total",
			Help:      "Events published through the stream hub",
		},
		[]string{"event", "outcome"},
	)

	HubDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hub_delivered_total",
			Help:      "Events enqueued to subscribers",
		},
	)

	HubDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hub_dropped_total",
			Help:      "Queued events dropped from lagging subscribers",
		},
	)

	HubSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hub_subscriptions",
			Help:      "Currently registered stream subscriptions",
		},
	)

	AssistantStreamsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "assistant_streams_total",
			Help:      "Assistant generations by finish reason",
		},
		[]string{"model", "finish_reason"},
	)

	AssistantFirstChunk = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "assistant_first_chunk_seconds",
			Help:      "Time to first chunk for assistant generations",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"model"},
	)

	AssistantTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "assistant_tokens_total",
			Help:      "Prompt and completion tokens consumed by assistant generations",
		},
		[]string{"model", "type"},
	)

	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate-limit decisions by profile",
		},
		[]string{"profile", "decision"},
	)

	SessionValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_validations_total",
			Help:      "Session validations by outcome",
		},
		[]string{"outcome"},
	)

	MaintenanceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "maintenance_runs_total",
			Help:      "Maintenance job executions",
		},
		[]string{"job", "status"},
	)
)

func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint, status).Observe(durationSec)
}

func RecordPublish(event, outcome string) {
	HubPublishedTotal.WithLabelValues(event, outcome).Inc()
}

func RecordAssistantStream(model, finishReason string, promptTokens, completionTokens int) {
	AssistantStreamsTotal.WithLabelValues(model, finishReason).Inc()
	if promptTokens > 0 {
		AssistantTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		AssistantTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

func RecordRateLimit(profile string, allowed bool) {
	decision := "allow"
	if !allowed {
		decision = "reject"
	}
	RateLimitDecisionsTotal.WithLabelValues(profile, decision).Inc()
}

func RecordSessionValidation(outcome string) {
	SessionValidationsTotal.WithLabelValues(outcome).Inc()
}

func RecordMaintenance(job string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	MaintenanceRunsTotal.WithLabelValues(job, status).Inc()
}
