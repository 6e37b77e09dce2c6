// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for LLM client operations.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// llmCallDuration measures the duration of LLM API calls.
	//
	// Labels:
	//   - provider: "deepseek"
	//   - status: "success" or "error"
	llmCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mentor",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of LLM API calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "status"},
	)

	// llmCallsTotal counts the total number of LLM API calls.
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentor",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total number of LLM API calls.",
		},
		[]string{"provider", "status"},
	)

	// llmErrorsTotal counts LLM errors by type.
	//
	// Labels:
	//   - provider: "deepseek"
	//   - error_type: "timeout", "auth", "rate_limit", "server", "unknown"
	llmErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mentor",
			Subsystem: "llm",
			Name:      "errors_total",
			Help:      "Total LLM errors by type.",
		},
		[]string{"provider", "error_type"},
	)
)

// classifyLLMError maps an error to a label-safe error type string.
//
// Description:
//
//	Inspects the error to categorize it into one of the predefined error
//	types used as Prometheus label values. This avoids high-cardinality
//	labels from raw error messages.
//
// Thread Safety: Safe for concurrent use.
func classifyLLMError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrRateLimited) {
		return "rate_limit"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "context canceled") ||
		strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "returned status 401") ||
		strings.Contains(msg, "returned status 403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "api key"):
		return "auth"
	case strings.Contains(msg, "returned status 500") ||
		strings.Contains(msg, "returned status 502") ||
		strings.Contains(msg, "returned status 503"):
		return "server"
	default:
		return "unknown"
	}
}

// recordLLMCall records Prometheus metrics for one completed LLM call.
//
// Thread Safety: Safe for concurrent use.
func recordLLMCall(provider string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		llmErrorsTotal.WithLabelValues(provider, classifyLLMError(err)).Inc()
	}
	llmCallDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	llmCallsTotal.WithLabelValues(provider, status).Inc()
}
