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
	"encoding/json"
	"strings"
)

// =============================================================================
// Tool Request Extraction
// =============================================================================
//
// The model is instructed to emit capability calls as JSON objects of the
// form {"tool_request": {"tool_name": ..., "arguments": {...}}}, usually
// inside a ```json fence. Models are unreliable about format, so extraction
// runs three strategies in order and uses the first that yields anything:
//
//	1. Every ```json fenced block, parsed independently. A malformed
//	   block is skipped; the rest are still extracted.
//	2. Brace-matched top-level objects anywhere in the text.
//	3. A last-resort parse of the span from the first "{" to the last "}".
//
// Order of appearance is preserved and there is no cap on how many
// requests one response may carry.

// requestMarker is the wrapper key a request object must carry.
const requestMarker = "tool_request"

// LooksLikeToolRequest reports whether text plausibly contains a
// capability request.
//
// Description:
//
//	Cheap pre-check run before full extraction: the wrapper key plus at
//	least one brace pair, or a ```json fence. False negatives here mean
//	the text is treated as a direct answer, so the check is deliberately
//	permissive.
func LooksLikeToolRequest(text string) bool {
	if strings.Contains(text, requestMarker) &&
		strings.Contains(text, "{") && strings.Contains(text, "}") {
		return true
	}
	return strings.Contains(strings.ToLower(text), "```json")
}

// ExtractRequests parses all capability requests out of raw model text.
//
// Description:
//
//	Runs the three strategies described above. Returns the requests in
//	source order; an empty slice when none parse.
//
// Inputs:
//   - text: Raw model response text.
//
// Outputs:
//   - []ToolInvocationRequest: Extracted requests, possibly empty.
func ExtractRequests(text string) []ToolInvocationRequest {
	if requests := extractFromFences(text); len(requests) > 0 {
		return requests
	}
	if requests := extractFromBraces(text); len(requests) > 0 {
		return requests
	}
	return extractFirstToLast(text)
}

// extractFromFences parses every ```json fenced block independently.
func extractFromFences(text string) []ToolInvocationRequest {
	var requests []ToolInvocationRequest

	var block strings.Builder
	inBlock := false
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.Contains(strings.ToLower(line), "```json"):
			inBlock = true
			block.Reset()
		case inBlock && strings.Contains(line, "```"):
			inBlock = false
			if req, ok := parseRequestObject(block.String()); ok {
				requests = append(requests, req)
			}
			block.Reset()
		case inBlock:
			block.WriteString(line)
			block.WriteString("\n")
		}
	}
	return requests
}

// extractFromBraces scans for complete top-level object literals using
// brace matching that respects JSON string literals and escapes.
func extractFromBraces(text string) []ToolInvocationRequest {
	var requests []ToolInvocationRequest
	for _, candidate := range topLevelObjects(text) {
		if req, ok := parseRequestObject(candidate); ok {
			requests = append(requests, req)
		}
	}
	return requests
}

// extractFirstToLast attempts one parse of the widest brace span.
func extractFirstToLast(text string) []ToolInvocationRequest {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil
	}
	if req, ok := parseRequestObject(text[start : end+1]); ok {
		return []ToolInvocationRequest{req}
	}
	return nil
}

// topLevelObjects returns every balanced top-level {...} span in text.
func topLevelObjects(text string) []string {
	var spans []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					spans = append(spans, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return spans
}

// wireRequest mirrors the JSON shape the model is instructed to emit.
type wireRequest struct {
	ToolRequest *wireToolRequest `json:"tool_request"`
}

type wireToolRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// parseRequestObject decodes one candidate JSON object into a request.
// Succeeds only when the object nests a tool_request with a tool name.
func parseRequestObject(candidate string) (ToolInvocationRequest, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ToolInvocationRequest{}, false
	}

	var wire wireRequest
	if err := json.Unmarshal([]byte(candidate), &wire); err != nil {
		return ToolInvocationRequest{}, false
	}
	if wire.ToolRequest == nil || wire.ToolRequest.ToolName == "" {
		return ToolInvocationRequest{}, false
	}

	args := wire.ToolRequest.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return ToolInvocationRequest{
		Name:      wire.ToolRequest.ToolName,
		Arguments: args,
	}, true
}
