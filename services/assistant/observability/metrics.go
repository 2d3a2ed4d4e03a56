// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// assistant.
//
// # Description
//
// This package implements Prometheus metrics for monitoring the decision
// engine and the assistant's request surface. Metrics include:
//   - Decision counters (by domain and resulting status)
//   - Health score distributions
//   - Rule cache effectiveness (hits, misses, size)
//   - Routing confidence and probe latency
//   - Request counters and active websocket streams
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for decision engine and assistant metrics
const netopsSubsystem = "netops"

// DecisionMetrics holds all Prometheus metrics for the assistant.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring decision
// outcomes and endpoint health. Initialize once at startup via
// InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type DecisionMetrics struct {
	// DecisionsTotal counts engine decisions by domain and outcome.
	// Labels: domain (network_health, query_routing), status
	DecisionsTotal *prometheus.CounterVec

	// HealthScore observes the final health score per decision.
	// Labels: domain
	HealthScore *prometheus.HistogramVec

	// RuleCacheLookupsTotal counts rule cache lookups by result.
	// Labels: result (hit, miss)
	RuleCacheLookupsTotal *prometheus.CounterVec

	// RuleCacheSize tracks the number of cached rule sets.
	RuleCacheSize prometheus.Gauge

	// RoutingConfidenceTotal counts routing decisions by confidence level.
	// Labels: confidence (HIGH, MEDIUM, LOW)
	RoutingConfidenceTotal *prometheus.CounterVec

	// ProbeSearchDurationSeconds measures the routing probe fan-out.
	ProbeSearchDurationSeconds prometheus.Histogram

	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint, status (success, error)
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts errors by endpoint and type.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// ActiveStreams tracks currently active websocket chat streams.
	ActiveStreams prometheus.Gauge

	// HistorianWritesTotal counts health samples written to InfluxDB.
	// Labels: status (success, error)
	HistorianWritesTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of DecisionMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *DecisionMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once at
// application startup, after the Prometheus registry is available.
//
// # Outputs
//
//   - *DecisionMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *DecisionMetrics {
	DefaultMetrics = &DecisionMetrics{
		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "decisions_total",
				Help:      "Total engine decisions by domain and resulting status",
			},
			[]string{"domain", "status"},
		),

		HealthScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "health_score",
				Help:      "Distribution of health scores per decision",
				Buckets:   []float64{0, 10, 30, 50, 70, 90, 100, 110},
			},
			[]string{"domain"},
		),

		RuleCacheLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "rule_cache_lookups_total",
				Help:      "Rule cache lookups by result",
			},
			[]string{"result"},
		),

		RuleCacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "rule_cache_size",
				Help:      "Number of cached rule sets",
			},
		),

		RoutingConfidenceTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "routing_confidence_total",
				Help:      "Routing decisions by confidence level",
			},
			[]string{"confidence"},
		),

		ProbeSearchDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "probe_search_duration_seconds",
				Help:      "Duration of the routing probe search fan-out",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
		),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "requests_total",
				Help:      "Total API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and type",
			},
			[]string{"endpoint", "error_code"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "active_chat_streams",
				Help:      "Number of currently active websocket chat streams",
			},
		),

		HistorianWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: netopsSubsystem,
				Name:      "historian_writes_total",
				Help:      "Health samples written to the historian by status",
			},
			[]string{"status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeInventory indicates an inventory API failure.
	ErrorCodeInventory ErrorCode = "inventory_error"

	// ErrorCodeRuleStore indicates a rule store failure.
	ErrorCodeRuleStore ErrorCode = "rule_store_error"

	// ErrorCodeLLMError indicates an LLM backend failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeTimeout indicates an operation timeout.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"

	// ErrorCodeQueryBlocked indicates the content filter blocked the query.
	ErrorCodeQueryBlocked ErrorCode = "query_blocked"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents an API endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointHealthAnalysis is the device health analysis endpoint.
	EndpointHealthAnalysis Endpoint = "health_analysis"

	// EndpointRoute is the query routing endpoint.
	EndpointRoute Endpoint = "route"

	// EndpointAsk is the combined ask endpoint.
	EndpointAsk Endpoint = "ask"

	// EndpointChat is the single-shot HTTP chat endpoint.
	EndpointChat Endpoint = "chat"

	// EndpointChatWS is the websocket chat endpoint.
	EndpointChatWS Endpoint = "chat_ws"

	// EndpointDevices is the device listing/details endpoint group.
	EndpointDevices Endpoint = "devices"

	// EndpointDocuments is the knowledge ingestion endpoint.
	EndpointDocuments Endpoint = "documents"

	// EndpointHistory is the decision history endpoint.
	EndpointHistory Endpoint = "history"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordDecision records one engine decision outcome.
//
// # Inputs
//
//   - domain: The decision domain.
//   - status: The resulting severity tier.
//   - score: The final health score.
func (m *DecisionMetrics) RecordDecision(domain string, status decision.SeverityTier, score float64) {
	m.DecisionsTotal.WithLabelValues(domain, string(status)).Inc()
	m.HealthScore.WithLabelValues(domain).Observe(score)
}

// RecordRouting records one routing decision by confidence.
func (m *DecisionMetrics) RecordRouting(confidence decision.ConfidenceLevel) {
	m.RoutingConfidenceTotal.WithLabelValues(string(confidence)).Inc()
}

// SyncCacheStats publishes the engine's cumulative rule cache counters.
//
// # Description
//
// The engine tracks hits and misses internally; this pushes the current
// totals into Prometheus. Counters only move forward, so the deltas since
// the last sync are added.
func (m *DecisionMetrics) SyncCacheStats(prev, curr decision.CacheStats) {
	if d := curr.Hits - prev.Hits; d > 0 {
		m.RuleCacheLookupsTotal.WithLabelValues("hit").Add(float64(d))
	}
	if d := curr.Misses - prev.Misses; d > 0 {
		m.RuleCacheLookupsTotal.WithLabelValues("miss").Add(float64(d))
	}
	m.RuleCacheSize.Set(float64(curr.Size))
}

// RecordProbeDuration records one routing probe fan-out duration.
func (m *DecisionMetrics) RecordProbeDuration(seconds float64) {
	m.ProbeSearchDurationSeconds.Observe(seconds)
}

// RecordRequest records a completed API request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
func (m *DecisionMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records an endpoint error.
func (m *DecisionMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *DecisionMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *DecisionMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordHistorianWrite records one historian write attempt.
func (m *DecisionMetrics) RecordHistorianWrite(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.HistorianWritesTotal.WithLabelValues(status).Inc()
}
