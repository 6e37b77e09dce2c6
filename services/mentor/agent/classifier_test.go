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
)

// scriptedClient replays canned replies in order. A nil error with an
// empty reply simulates an empty response; exhausting the script repeats
// the last entry.
type scriptedClient struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   []scriptedCall
}

type scriptedCall struct {
	messages []llm.Message
	params   llm.GenerationParams
}

func (s *scriptedClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.calls)
	s.calls = append(s.calls, scriptedCall{messages: messages, params: params})
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	if i < 0 {
		return "", errors.New("scripted client: no replies configured")
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.replies[i], err
}

func (s *scriptedClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedClient) call(i int) scriptedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func testClassifierConfig() config.ClassifierConfig {
	return config.ClassifierConfig{
		Temperature: 0.1,
		MaxTokens:   10,
		ErrorKeywords: []string{
			"error", "missing", "not found", "denied",
			"forbidden", "invalid", "failed", "unable",
		},
		CacheTTLMinutes: 60,
	}
}

func testRequest() ToolInvocationRequest {
	return ToolInvocationRequest{Name: "list_classes", Arguments: map[string]any{}}
}

func TestClassifier_ErrorToken(t *testing.T) {
	client := &scriptedClient{replies: []string{"ERROR"}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	if !c.Classify(context.Background(), testRequest(), `{"error": "boom"}`) {
		t.Error("reply ERROR must classify as error")
	}
}

func TestClassifier_SuccessToken(t *testing.T) {
	client := &scriptedClient{replies: []string{"EXITO"}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	if c.Classify(context.Background(), testRequest(), `{"classes": []}`) {
		t.Error("reply EXITO must classify as success")
	}
}

func TestClassifier_CaseInsensitiveErrorToken(t *testing.T) {
	client := &scriptedClient{replies: []string{"error."}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	if !c.Classify(context.Background(), testRequest(), `{}`) {
		t.Error("lowercase error token must classify as error")
	}
}

func TestClassifier_NeitherTokenDefaultsToSuccess(t *testing.T) {
	// Neither token present defaults to success. This is the documented
	// policy, not an accident; the result text even contains the word
	// "error" but the model verdict wins.
	client := &scriptedClient{replies: []string{"I think it went fine"}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	if c.Classify(context.Background(), testRequest(), `{"note": "error-free"}`) {
		t.Error("reply with neither token must classify as success")
	}
}

func TestClassifier_FallbackOnCallFailure(t *testing.T) {
	client := &scriptedClient{replies: []string{""}, errs: []error{errors.New("model down")}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	if !c.Classify(context.Background(), testRequest(), `{"error": "missing required parameter: path"}`) {
		t.Error("keyword fallback must flag an error result")
	}
}

func TestClassifier_FallbackCleanResultIsSuccess(t *testing.T) {
	client := &scriptedClient{replies: []string{""}, errs: []error{errors.New("model down")}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	if c.Classify(context.Background(), testRequest(), `{"classes": [{"name": "Algorithms"}]}`) {
		t.Error("keyword fallback must pass a clean result")
	}
}

func TestClassifier_FallbackDeterministic(t *testing.T) {
	cfg := testClassifierConfig()
	client := &scriptedClient{
		replies: []string{"", ""},
		errs:    []error{errors.New("down"), errors.New("down")},
	}
	c := NewClassifier(client, cfg, nil, nil)

	result := `{"status": "resource not found"}`
	first := c.Classify(context.Background(), testRequest(), result)
	second := c.Classify(context.Background(), testRequest(), result)
	if first != second {
		t.Errorf("fallback verdicts differ: %v then %v", first, second)
	}
	if !first {
		t.Error("\"not found\" must be flagged by the fallback")
	}
}

func TestClassifier_UsesConstrainedParams(t *testing.T) {
	client := &scriptedClient{replies: []string{"EXITO"}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	c.Classify(context.Background(), testRequest(), `{}`)

	call := client.call(0)
	if call.params.Temperature == nil || *call.params.Temperature != 0.1 {
		t.Errorf("temperature = %v, want 0.1", call.params.Temperature)
	}
	if call.params.MaxTokens == nil || *call.params.MaxTokens != 10 {
		t.Errorf("max tokens = %v, want 10", call.params.MaxTokens)
	}
}

func TestClassifier_PromptNamesToolAndArguments(t *testing.T) {
	client := &scriptedClient{replies: []string{"EXITO"}}
	c := NewClassifier(client, testClassifierConfig(), nil, nil)

	req := ToolInvocationRequest{
		Name:      "class_performance",
		Arguments: map[string]any{"class_id": "c-1"},
	}
	c.Classify(context.Background(), req, `{"teams": []}`)

	prompt := client.call(0).messages[0].Content
	for _, want := range []string{"class_performance", "class_id", "ERROR", "EXITO"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("judgment prompt missing %q", want)
		}
	}
}
