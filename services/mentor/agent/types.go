// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the autonomous tool-use loop: extracting
// capability requests from model text, executing them through the
// registry, classifying their results, and driving follow-up rounds
// until the model answers or the iteration budget runs out.
package agent

import (
	"context"
	"encoding/json"
)

// =============================================================================
// Core Types
// =============================================================================

// ToolInvocationRequest is one capability call the model asked for.
//
// Immutable once produced by the extractor.
type ToolInvocationRequest struct {
	// Name is the capability name to invoke.
	Name string

	// Arguments is the argument object the model supplied. Never nil.
	Arguments map[string]any
}

// ArgumentsJSON renders the arguments for prompts and cache keys.
func (r ToolInvocationRequest) ArgumentsJSON() string {
	b, err := json.Marshal(r.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ToolExecutionRecord is one executed request with its classified result.
//
// Records live only until final-answer synthesis.
type ToolExecutionRecord struct {
	Request ToolInvocationRequest

	// Result is the (possibly truncated) structured result.
	Result map[string]any

	// IsError is the classifier's verdict. Always resolved; the keyword
	// fallback guarantees no unknown state.
	IsError bool

	// Iteration is the 1-based loop round that produced this record.
	Iteration int
}

// ResultJSON renders the result for prompts. Indented for readability in
// the conversation, matching what the model saw when it produced it.
func (rec ToolExecutionRecord) ResultJSON() string {
	b, err := json.MarshalIndent(rec.Result, "", "  ")
	if err != nil {
		return `{"error": "unserializable result"}`
	}
	return string(b)
}

// IterationOutcome partitions one round's records by verdict. Used only
// to select the follow-up prompt branch.
type IterationOutcome struct {
	Succeeded []ToolExecutionRecord
	Failed    []ToolExecutionRecord
}

// partition splits records into an IterationOutcome.
func partition(records []ToolExecutionRecord) IterationOutcome {
	var out IterationOutcome
	for _, rec := range records {
		if rec.IsError {
			out.Failed = append(out.Failed, rec)
		} else {
			out.Succeeded = append(out.Succeeded, rec)
		}
	}
	return out
}

// =============================================================================
// Progress Publishing
// =============================================================================

// Status is the progress state reported to the session's listener.
type Status string

const (
	// StatusProcessing marks a non-terminal progress update.
	StatusProcessing Status = "processing"

	// StatusCompleted marks a successful terminal update.
	StatusCompleted Status = "completed"

	// StatusError marks a failed terminal update.
	StatusError Status = "error"
)

// ProgressFunc publishes one progress update for the running session.
//
// Description:
//
//	The loop awaits each call before continuing, so a single session's
//	updates reach the listener in generation order. The returned bool
//	reports delivery; the loop ignores it. Implementations must not
//	panic or block indefinitely.
//
// A nil ProgressFunc is valid; the loop skips publishing.
type ProgressFunc func(ctx context.Context, message string, status Status, isComplete bool) bool

// publish is the nil-safe call helper.
func (p ProgressFunc) publish(ctx context.Context, message string, status Status, isComplete bool) {
	if p == nil {
		return
	}
	p(ctx, message, status, isComplete)
}
