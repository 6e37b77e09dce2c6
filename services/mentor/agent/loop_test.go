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
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianMentor/services/llm"
	"github.com/AleutianAI/AleutianMentor/services/mentor/config"
	"github.com/AleutianAI/AleutianMentor/services/mentor/tools"
)

func testMentorConfig() *config.MentorConfig {
	return &config.MentorConfig{
		Agent: config.AgentConfig{
			MaxIterations:         10,
			IterationDelaySeconds: 0, // no pacing in tests
			ResultMaxChars:        5000,
			CompletionSentinel:    "LISTO",
		},
		Classifier: testClassifierConfig(),
		Synthesis: config.SynthesisConfig{
			MaxSuccesses:        3,
			SuccessPreviewChars: 1000,
			MaxFailures:         2,
			FailurePreviewChars: 500,
			MaxTokens:           1500,
		},
		Followup: config.FollowupConfig{
			CorrectiveMaxTokens:  700,
			ProgressMaxTokens:    500,
			AlternativeMaxTokens: 600,
			RetryTemperature:     0.3,
			RetryMaxTokens:       300,
		},
	}
}

type progressRecorder struct {
	mu     sync.Mutex
	events []progressEvent
}

type progressEvent struct {
	message    string
	status     Status
	isComplete bool
}

func (p *progressRecorder) fn() ProgressFunc {
	return func(ctx context.Context, message string, status Status, isComplete bool) bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.events = append(p.events, progressEvent{message, status, isComplete})
		return true
	}
}

func (p *progressRecorder) all() []progressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]progressEvent(nil), p.events...)
}

// newTestLoop wires a loop over scripted model clients and a single
// in-memory capability.
func newTestLoop(t *testing.T, loopClient, judgeClient *scriptedClient, handler tools.Handler, progress ProgressFunc) (*Loop, *int) {
	t.Helper()
	invocations := 0
	reg := tools.NewRegistry()
	counted := func(ctx context.Context, args map[string]any) (any, error) {
		invocations++
		return handler(ctx, args)
	}
	err := reg.Register(tools.Spec{Name: "search_submissions", Description: "test"}, counted)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	cfg := testMentorConfig()
	inv := NewInvoker(reg, cfg.Agent.ResultMaxChars, nil)
	cls := NewClassifier(judgeClient, cfg.Classifier, nil, nil)
	return NewLoop(loopClient, inv, cls, cfg, progress, nil), &invocations
}

func fencedRequest(tool, argsJSON string) string {
	return "```json\n" +
		`{"tool_request": {"tool_name": "` + tool + `", "arguments": ` + argsJSON + `}, "reason": "test"}` + "\n" +
		"```"
}

func TestLoop_DirectAnswerTerminatesImmediately(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{"The answer is 42"}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	rec := &progressRecorder{}
	loop, invocations := newTestLoop(t, loopClient, judge, nil, rec.fn())

	answer, err := loop.Run(context.Background(), "what is the answer?", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if answer != "The answer is 42" {
		t.Errorf("answer = %q, want raw model text", answer)
	}
	if loopClient.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", loopClient.callCount())
	}
	if *invocations != 0 {
		t.Errorf("tool invocations = %d, want 0", *invocations)
	}
	for _, ev := range rec.all() {
		if ev.isComplete {
			t.Error("loop must never publish a terminal event")
		}
	}
}

func TestLoop_SingleToolThenSentinel(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{
		fencedRequest("search_submissions", `{"team_name": "rockets"}`),
		"LISTO",
		"I found three matching submissions from team rockets via search_submissions.",
	}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"submissions": []any{"a", "b", "c"}, "count": 3}, nil
	}
	rec := &progressRecorder{}
	loop, invocations := newTestLoop(t, loopClient, judge, handler, rec.fn())

	answer, err := loop.Run(context.Background(), "find rockets' submissions", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(answer, "search_submissions") {
		t.Errorf("final answer should reference the successful tool: %q", answer)
	}
	if *invocations != 1 {
		t.Errorf("tool invocations = %d, want 1", *invocations)
	}
	// initial + follow-up + synthesis
	if loopClient.callCount() != 3 {
		t.Errorf("model calls = %d, want 3", loopClient.callCount())
	}

	// The all-succeeded follow-up asks whether more tools are needed.
	followup := loopClient.call(1)
	last := followup.messages[len(followup.messages)-1]
	if !strings.Contains(last.Content, "more specific capabilities") {
		t.Errorf("follow-up should ask whether more capabilities are needed: %q", last.Content)
	}
}

func TestLoop_SentinelCaseInsensitive(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{
		fencedRequest("search_submissions", `{"team_name": "x"}`),
		"listo, that is enough.",
		"final answer",
	}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"count": 1}, nil
	}
	loop, _ := newTestLoop(t, loopClient, judge, handler, nil)

	if _, err := loop.Run(context.Background(), "q", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loopClient.callCount() != 3 {
		t.Errorf("model calls = %d, want 3 (sentinel must stop the loop)", loopClient.callCount())
	}
}

func TestLoop_CorrectiveFollowupNamesFailure(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{
		fencedRequest("search_submissions", `{"team_name": "ghost"}`),
		"LISTO",
		"final",
	}}
	judge := &scriptedClient{replies: []string{"ERROR"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("missing required parameter: assignment_title")
	}
	loop, _ := newTestLoop(t, loopClient, judge, handler, nil)

	if _, err := loop.Run(context.Background(), "q", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	followup := loopClient.call(1)
	last := followup.messages[len(followup.messages)-1].Content
	for _, want := range []string{"search_submissions", "ghost", "missing required parameter", "LISTO"} {
		if !strings.Contains(last, want) {
			t.Errorf("corrective follow-up missing %q:\n%s", want, last)
		}
	}
	if !strings.Contains(last, "Do not repeat") {
		t.Errorf("corrective follow-up must forbid repeating the failing call:\n%s", last)
	}
}

func TestLoop_BudgetExhaustionProducesFallback(t *testing.T) {
	// The model keeps asking for tools forever; every result succeeds but
	// it never emits the sentinel. The synthesis reply is also a tool
	// request, forcing the canned fallback.
	loopClient := &scriptedClient{replies: []string{
		fencedRequest("search_submissions", `{"team_name": "x"}`),
	}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"count": 1}, nil
	}
	loop, invocations := newTestLoop(t, loopClient, judge, handler, nil)

	answer, err := loop.Run(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *invocations != 10 {
		t.Errorf("tool invocations = %d, want 10 (one per budgeted iteration)", *invocations)
	}
	// initial + 10 follow-ups + synthesis
	if loopClient.callCount() != 12 {
		t.Errorf("model calls = %d, want 12", loopClient.callCount())
	}
	if !strings.Contains(answer, "successful") {
		t.Errorf("fallback answer should summarize successes: %q", answer)
	}
	if LooksLikeToolRequest(answer) {
		t.Error("fallback answer must never look like a tool request")
	}
}

func TestLoop_AllFailedUsesAlternativePrompt(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{
		fencedRequest("search_submissions", `{"team_name": "x"}`),
		"LISTO",
		"final",
	}}
	judge := &scriptedClient{replies: []string{"ERROR"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("permission denied")
	}

	// Shrink the budget to 1 so the corrective branch (which requires
	// remaining budget) is unavailable and the alternative branch runs.
	cfg := testMentorConfig()
	cfg.Agent.MaxIterations = 1

	reg := tools.NewRegistry()
	if err := reg.Register(tools.Spec{Name: "search_submissions"}, handler); err != nil {
		t.Fatalf("Register: %v", err)
	}
	inv := NewInvoker(reg, cfg.Agent.ResultMaxChars, nil)
	cls := NewClassifier(judge, cfg.Classifier, nil, nil)
	loop := NewLoop(loopClient, inv, cls, cfg, nil, nil)

	if _, err := loop.Run(context.Background(), "q", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	followup := loopClient.call(1)
	last := followup.messages[len(followup.messages)-1].Content
	if !strings.Contains(last, "All the capabilities above failed") {
		t.Errorf("expected alternative-strategy prompt, got:\n%s", last)
	}
}

func TestLoop_EmptyInitialResponseIsError(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{""}, errs: []error{errors.New("timeout")}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	loop, _ := newTestLoop(t, loopClient, judge, nil, nil)

	_, err := loop.Run(context.Background(), "q", nil)
	if err == nil {
		t.Fatal("expected error when the initial model call yields nothing")
	}
}

func TestLoop_EmptyFollowupRetriesOnceThenStops(t *testing.T) {
	down := errors.New("timeout")
	loopClient := &scriptedClient{
		replies: []string{
			fencedRequest("search_submissions", `{"team_name": "x"}`),
			"", // follow-up times out
			"", // simplified retry also times out
		},
		errs: []error{nil, down, down},
	}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"count": 2}, nil
	}
	loop, invocations := newTestLoop(t, loopClient, judge, handler, nil)

	answer, err := loop.Run(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if *invocations != 1 {
		t.Errorf("tool invocations = %d, want 1", *invocations)
	}
	// Records exist, so synthesis is attempted (and also fails), leaving
	// the timeout fallback.
	if !strings.Contains(answer, "timed out") {
		t.Errorf("answer should explain the timeout: %q", answer)
	}

	// The simplified retry must use the reduced-context parameters.
	retry := loopClient.call(2)
	if len(retry.messages) != 1 {
		t.Errorf("retry context = %d messages, want 1", len(retry.messages))
	}
	if retry.params.Temperature == nil || *retry.params.Temperature != 0.3 {
		t.Errorf("retry temperature = %v, want 0.3", retry.params.Temperature)
	}
	if retry.params.MaxTokens == nil || *retry.params.MaxTokens != 300 {
		t.Errorf("retry max tokens = %v, want 300", retry.params.MaxTokens)
	}
}

func TestLoop_SeedMessagesIncludedInFirstCall(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{"direct answer"}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	loop, _ := newTestLoop(t, loopClient, judge, nil, nil)

	seed := []llm.Message{
		{Role: "system", Content: "You are the coordinator assistant."},
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	if _, err := loop.Run(context.Background(), "new question", seed); err != nil {
		t.Fatalf("Run: %v", err)
	}

	first := loopClient.call(0)
	if len(first.messages) != 4 {
		t.Fatalf("first call messages = %d, want seed + query = 4", len(first.messages))
	}
	if first.messages[0].Role != "system" {
		t.Errorf("messages[0].Role = %q, want system", first.messages[0].Role)
	}
	lastMsg := first.messages[len(first.messages)-1]
	if lastMsg.Role != "user" || lastMsg.Content != "new question" {
		t.Errorf("last message = %+v, want the new user query", lastMsg)
	}
}

func TestLoop_ProgressEventsInOrder(t *testing.T) {
	loopClient := &scriptedClient{replies: []string{
		fencedRequest("search_submissions", `{"team_name": "x"}`),
		"LISTO",
		"final answer",
	}}
	judge := &scriptedClient{replies: []string{"EXITO"}}
	handler := func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"count": 1}, nil
	}
	rec := &progressRecorder{}
	loop, _ := newTestLoop(t, loopClient, judge, handler, rec.fn())

	if _, err := loop.Run(context.Background(), "q", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := rec.all()
	if len(events) < 3 {
		t.Fatalf("len(events) = %d, want at least 3", len(events))
	}
	if !strings.Contains(events[0].message, "Analyzing") {
		t.Errorf("first event = %q, want analysis notice", events[0].message)
	}
	if !strings.Contains(events[1].message, "iteration 1/10") {
		t.Errorf("second event = %q, want iteration progress", events[1].message)
	}
	for _, ev := range events {
		if ev.status != StatusProcessing || ev.isComplete {
			t.Errorf("loop event must be non-terminal processing, got %+v", ev)
		}
	}
}
