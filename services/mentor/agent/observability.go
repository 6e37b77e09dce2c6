// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Agent Metrics
// =============================================================================

var (
	loopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mentor",
		Subsystem: "agent",
		Name:      "loop_duration_seconds",
		Help:      "End-to-end duration of one orchestration loop run.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	loopIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mentor",
		Subsystem: "agent",
		Name:      "loop_iterations",
		Help:      "Tool-use iterations consumed per loop run.",
		Buckets:   []float64{1, 2, 3, 5, 7, 10},
	})

	loopTerminations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mentor",
		Subsystem: "agent",
		Name:      "loop_terminations_total",
		Help:      "Loop terminations by reason.",
	}, []string{"reason"})

	toolExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mentor",
		Subsystem: "agent",
		Name:      "tool_executions_total",
		Help:      "Capability invocations by tool and outcome.",
	}, []string{"tool", "outcome"})

	classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mentor",
		Subsystem: "agent",
		Name:      "classifications_total",
		Help:      "Result classifications by method and verdict.",
	}, []string{"method", "verdict"})

	verdictCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mentor",
		Subsystem: "agent",
		Name:      "verdict_cache_total",
		Help:      "Verdict cache lookups by result.",
	}, []string{"result"})
)

// recordLoopRun records one completed loop run.
func recordLoopRun(start time.Time, iterations int, reason string) {
	loopDuration.Observe(time.Since(start).Seconds())
	loopIterations.Observe(float64(iterations))
	loopTerminations.WithLabelValues(reason).Inc()
}

// recordToolExecution records one capability invocation.
// outcome is "ok", "error", or "unregistered".
func recordToolExecution(tool, outcome string) {
	toolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
}

// recordClassification records one classifier verdict.
// method is "model" or "keyword".
func recordClassification(method string, isError bool) {
	verdict := "success"
	if isError {
		verdict = "error"
	}
	classificationsTotal.WithLabelValues(method, verdict).Inc()
}

// recordVerdictCache records one cache lookup. result is "hit" or "miss".
func recordVerdictCache(result string) {
	verdictCacheTotal.WithLabelValues(result).Inc()
}
