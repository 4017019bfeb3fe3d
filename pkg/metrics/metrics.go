// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// StoreRequestDuration tracks document store call duration.
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_request_duration_seconds",
			Help:    "Document store request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "status"},
	)

	// CacheLookupsTotal tracks document cache hits and misses.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_cache_lookups_total",
			Help: "Document cache lookups by result",
		},
		[]string{"result"},
	)

	// LLMStreamDuration tracks LLM streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// ChatTurnsTotal tracks completed chat turns by entry protocol.
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Completed chat turns",
		},
		[]string{"mode", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStoreRequest records metrics for a document store call.
func RecordStoreRequest(method, status string, duration float64) {
	StoreRequestDuration.WithLabelValues(method, status).Observe(duration)
}

// RecordCacheLookup records a document cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordLLMStream records metrics for an LLM streaming response.
func RecordLLMStream(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMStreamDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordChatTurn records a completed or failed chat turn.
func RecordChatTurn(mode, status string) {
	ChatTurnsTotal.WithLabelValues(mode, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
