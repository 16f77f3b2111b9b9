// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rigchat"

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "submissions_total",
		Help:      "Chat submissions by mode and outcome.",
	}, []string{"mode", "outcome"})

	gatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "gateway_requests_total",
		Help:      "Gateway calls by operation and outcome.",
	}, []string{"op", "outcome"})

	gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "gateway_request_duration_seconds",
		Help:      "Gateway call latency by operation.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"op"})

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tool_calls_total",
		Help:      "Local function executions by tool and result.",
	}, []string{"tool", "result"})

	streamChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "stream_chunks_total",
		Help:      "Streamed content chunks received from the gateway.",
	})

	tokensEstimated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "tokens_estimated_total",
		Help:      "Estimated tokens added to the usage counter.",
	})

	validationRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "validation_requests_total",
		Help:      "Validation endpoint requests by HTTP status.",
	}, []string{"status"})
)

// RecordSubmission counts one finished submission.
func RecordSubmission(mode, outcome string) {
	submissionsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordGatewayCall counts one gateway call and observes its latency.
func RecordGatewayCall(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	gatewayRequestsTotal.WithLabelValues(op, outcome).Inc()
	gatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordToolCall counts one local function execution.
func RecordToolCall(tool string, isError bool) {
	result := "ok"
	if isError {
		result = "error"
	}
	toolCallsTotal.WithLabelValues(tool, result).Inc()
}

// RecordStreamChunk counts one streamed chunk.
func RecordStreamChunk() {
	streamChunksTotal.Inc()
}

// RecordValidation counts one validation endpoint response.
func RecordValidation(status string) {
	validationRequestsTotal.WithLabelValues(status).Inc()
}
