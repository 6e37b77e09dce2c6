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
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// OTel Span Tests (using test exporter)
// =============================================================================

// The global otel tracer provider only delegates to an SDK provider once,
// so a single shared provider is installed for the whole package and each
// test attaches (and detaches) its own exporter via a span processor.
var (
	testTracerProviderOnce sync.Once
	testTracerProvider     *sdktrace.TracerProvider
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	testTracerProviderOnce.Do(func() {
		testTracerProvider = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(testTracerProvider)
	})
	exporter := tracetest.NewInMemoryExporter()
	processor := sdktrace.NewSimpleSpanProcessor(exporter)
	testTracerProvider.RegisterSpanProcessor(processor)
	t.Cleanup(func() {
		testTracerProvider.UnregisterSpanProcessor(processor)
	})
	return exporter
}

// spanAttrs flattens a recorded span's attributes into a string map.
func spanAttrs(s tracetest.SpanStub) map[string]string {
	attrs := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	return attrs
}

func TestRun_SpanCreated_DirectAnswer(t *testing.T) {
	exporter := setupTestTracer(t)

	loopClient := &scriptedClient{replies: []string{"The answer is 42"}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	loop, _ := newTestLoop(t, loopClient, judge, nil, nil)

	if _, err := loop.Run(context.Background(), "what is the answer?", nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatal("no spans recorded")
	}

	found := false
	for _, s := range spans {
		if s.Name == "agent.Loop.Run" {
			found = true
			attrs := spanAttrs(s)
			if attrs["termination"] != "direct" {
				t.Errorf("span termination = %q, want %q", attrs["termination"], "direct")
			}
		}
	}
	if !found {
		t.Error("span 'agent.Loop.Run' not found")
	}
}

func TestRun_SpanCreated_ToolRound(t *testing.T) {
	exporter := setupTestTracer(t)

	loopClient := &scriptedClient{replies: []string{
		fencedRequest("search_submissions", `{"team_name": "rockets"}`),
		"LISTO The rockets submitted on time.",
	}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"count": 1}, nil
	}
	loop, _ := newTestLoop(t, loopClient, judge, handler, nil)

	if _, err := loop.Run(context.Background(), "did the rockets submit?", nil); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	spans := exporter.GetSpans()

	var runAttrs, roundAttrs map[string]string
	for _, s := range spans {
		switch s.Name {
		case "agent.Loop.Run":
			runAttrs = spanAttrs(s)
		case "agent.Loop.executeRound":
			roundAttrs = spanAttrs(s)
		}
	}

	if runAttrs == nil {
		t.Fatal("span 'agent.Loop.Run' not found")
	}
	if runAttrs["termination"] != "sentinel" {
		t.Errorf("run span termination = %q, want %q", runAttrs["termination"], "sentinel")
	}
	if runAttrs["iterations"] != "1" {
		t.Errorf("run span iterations = %q, want %q", runAttrs["iterations"], "1")
	}

	if roundAttrs == nil {
		t.Fatal("span 'agent.Loop.executeRound' not found")
	}
	if roundAttrs["iteration"] != "1" {
		t.Errorf("round span iteration = %q, want %q", roundAttrs["iteration"], "1")
	}
	if roundAttrs["requests"] != "1" {
		t.Errorf("round span requests = %q, want %q", roundAttrs["requests"], "1")
	}
}
