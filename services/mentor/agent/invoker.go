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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianMentor/services/mentor/tools"
)

// =============================================================================
// Capability Invoker
// =============================================================================

// Invoker executes one capability request against the registry.
//
// Description:
//
//	Nothing escapes this boundary: unregistered names, handler errors,
//	and handler panics all become structured {"error": ...} results the
//	classifier handles like any other outcome. Serialized results above
//	the configured cap are replaced with a truncated preview plus a
//	marker recording the original length, bounding prompt growth.
//
// Thread Safety: Safe for concurrent use; all state is read-only.
type Invoker struct {
	registry       *tools.Registry
	resultMaxChars int
	logger         *slog.Logger
}

// NewInvoker creates an Invoker over the given registry.
//
// Inputs:
//   - registry: Capability registry. Must not be nil.
//   - resultMaxChars: Serialized-result cap. Values <= 0 use 5000.
//   - logger: May be nil; defaults to slog.Default().
func NewInvoker(registry *tools.Registry, resultMaxChars int, logger *slog.Logger) *Invoker {
	if registry == nil {
		panic("NewInvoker: registry must not be nil")
	}
	if resultMaxChars <= 0 {
		resultMaxChars = 5000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{registry: registry, resultMaxChars: resultMaxChars, logger: logger}
}

// Invoke executes one request and returns its structured result.
//
// Description:
//
//	Always returns a non-nil map. Failure becomes {"error": reason};
//	oversized results become {"truncated_result": preview,
//	"original_length": n}.
//
// Thread Safety: Safe for concurrent use.
func (inv *Invoker) Invoke(ctx context.Context, req ToolInvocationRequest) map[string]any {
	handler, ok := inv.registry.Lookup(req.Name)
	if !ok {
		inv.logger.Warn("capability not registered", slog.String("tool", req.Name))
		recordToolExecution(req.Name, "unregistered")
		return map[string]any{"error": fmt.Sprintf("unknown capability: %s", req.Name)}
	}

	raw, err := inv.safeCall(ctx, handler, req)
	if err != nil {
		inv.logger.Warn("capability execution failed",
			slog.String("tool", req.Name),
			slog.String("error", err.Error()),
		)
		recordToolExecution(req.Name, "error")
		return map[string]any{"error": err.Error()}
	}

	recordToolExecution(req.Name, "ok")
	return inv.capResult(req.Name, raw)
}

// safeCall runs the handler with panic containment.
func (inv *Invoker) safeCall(ctx context.Context, handler tools.Handler, req ToolInvocationRequest) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability %s panicked: %v", req.Name, r)
		}
	}()
	return handler(ctx, req.Arguments)
}

// capResult serializes the result and enforces the size cap.
func (inv *Invoker) capResult(tool string, raw any) map[string]any {
	serialized, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("unserializable result from %s: %v", tool, err)}
	}

	if len(serialized) <= inv.resultMaxChars {
		return toResultMap(raw, serialized)
	}

	inv.logger.Debug("capability result truncated",
		slog.String("tool", tool),
		slog.Int("original_length", len(serialized)),
		slog.Int("cap", inv.resultMaxChars),
	)
	preview := string(serialized[:inv.resultMaxChars]) + "\n... (result truncated due to size)"
	return map[string]any{
		"truncated_result": preview,
		"original_length":  len(serialized),
	}
}

// toResultMap normalizes a handler result to a map so the record type is
// uniform. Non-map results are wrapped under "result".
func toResultMap(raw any, serialized []byte) map[string]any {
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	var m map[string]any
	if err := json.Unmarshal(serialized, &m); err == nil && m != nil {
		return m
	}
	return map[string]any{"result": raw}
}
