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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// =============================================================================
// DeepSeek Wire Types
// =============================================================================

const defaultDeepSeekBaseURL = "https://api.deepseek.com/v1/chat/completions"

// ErrRateLimited indicates the API returned 429. Callers may back off and
// treat the response as empty rather than failing the session.
var ErrRateLimited = errors.New("deepseek: rate limited")

type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	Temperature *float32          `json:"temperature,omitempty"`
	MaxTokens   *int              `json:"max_tokens,omitempty"`
	TopP        *float32          `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Stream      bool              `json:"stream"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type deepseekResponse struct {
	ID      string           `json:"id"`
	Object  string           `json:"object"`
	Choices []deepseekChoice `json:"choices"`
	Error   *deepseekError   `json:"error,omitempty"`
}

type deepseekChoice struct {
	Index        int             `json:"index"`
	Message      deepseekMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type deepseekError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Client Implementation
// =============================================================================

// DeepSeekClient implements ChatClient for DeepSeek models using raw net/http.
//
// Description:
//
//	Uses DeepSeek's OpenAI-compatible Chat Completions REST API directly
//	without third-party SDKs. The same client serves the primary agent
//	model and the low-temperature classifier calls; per-call options are
//	supplied through GenerationParams.
//
// Thread Safety: DeepSeekClient is safe for concurrent use.
type DeepSeekClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewDeepSeekClientWithConfig creates a DeepSeekClient with explicit configuration.
//
// Description:
//
//	Creates a client without reading environment variables. Useful for
//	testing with mock servers or when configuration comes from a source
//	other than the environment.
//
// Inputs:
//   - apiKey: The DeepSeek API key.
//   - model: The model name (e.g., "deepseek-chat").
//   - baseURL: The full chat-completions URL.
//
// Outputs:
//   - *DeepSeekClient: The configured client.
func NewDeepSeekClientWithConfig(apiKey, model, baseURL string) *DeepSeekClient {
	if baseURL == "" {
		baseURL = defaultDeepSeekBaseURL
	}
	return &DeepSeekClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// NewDeepSeekClient creates a new DeepSeekClient from environment variables.
//
// Description:
//
//	Reads DEEPSEEK_API_KEY and DEEPSEEK_MODEL from the environment.
//	Defaults to "deepseek-chat" if DEEPSEEK_MODEL is not set.
//
// Outputs:
//   - *DeepSeekClient: The configured client.
//   - error: Non-nil if DEEPSEEK_API_KEY is missing.
func NewDeepSeekClient() (*DeepSeekClient, error) {
	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	model := os.Getenv("DEEPSEEK_MODEL")
	if apiKey == "" {
		slog.Warn("DeepSeek API key is empty. DeepSeek client will not function.")
		return nil, fmt.Errorf("deepseek: API key is missing (DEEPSEEK_API_KEY)")
	}
	if model == "" {
		model = "deepseek-chat"
		slog.Warn("DEEPSEEK_MODEL not set, defaulting to deepseek-chat")
	}
	slog.Info("Initializing DeepSeek client", "model", model)
	return &DeepSeekClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultDeepSeekBaseURL,
	}, nil
}

// Generate sends a single-turn prompt with a default system persona.
func (d *DeepSeekClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via DeepSeek", "model", d.model)
	persona := os.Getenv("MENTOR_SYSTEM_PERSONA")
	if persona == "" {
		persona = "You are a helpful academic assistant."
	}
	messages := []Message{
		{Role: "system", Content: persona},
		{Role: "user", Content: prompt},
	}
	return d.Chat(ctx, messages, params)
}

// Chat implements ChatClient using the DeepSeek chat completions API.
//
// Description:
//
//	Converts Message values to the wire format and sends a chat completion
//	request via raw HTTP. Handles system, user, and assistant roles;
//	unknown roles are mapped to user with a warning.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - messages: Conversation history.
//   - params: Generation parameters.
//
// Outputs:
//   - string: The assistant's response text.
//   - error: Non-nil if the request fails. ErrRateLimited wraps 429s.
//
// Thread Safety: This method is safe for concurrent use.
func (d *DeepSeekClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	model := d.model
	if params.ModelOverride != "" {
		model = params.ModelOverride
	}

	slog.Debug("Chat via DeepSeek", slog.String("model", model), slog.Int("messages", len(messages)))

	start := time.Now()
	content, err := d.chat(ctx, model, messages, params)
	recordLLMCall("deepseek", time.Since(start), err)
	return content, err
}

func (d *DeepSeekClient) chat(ctx context.Context, model string, messages []Message, params GenerationParams) (string, error) {
	wire := make([]deepseekMessage, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case "system", "user", "assistant":
			// valid roles, keep as-is
		default:
			slog.Warn("DeepSeek: unknown message role, mapping to user",
				slog.String("unknown_role", role),
				slog.String("model", model),
			)
			role = "user"
		}
		wire = append(wire, deepseekMessage{Role: role, Content: msg.Content})
	}

	reqPayload := deepseekRequest{
		Model:    model,
		Messages: wire,
		Stream:   false,
	}
	if params.Temperature != nil {
		reqPayload.Temperature = params.Temperature
	}
	if params.MaxTokens != nil {
		reqPayload.MaxTokens = params.MaxTokens
	}
	if params.TopP != nil {
		reqPayload.TopP = params.TopP
	}
	if len(params.Stop) > 0 {
		reqPayload.Stop = params.Stop
	}

	reqBody, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("deepseek: marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", d.baseURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("deepseek: creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("deepseek: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("deepseek: reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		slog.Warn("DeepSeek rate limit reached", slog.String("model", model))
		return "", fmt.Errorf("deepseek: API returned status 429: %w", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepseek: API returned status %d: %s", resp.StatusCode, SafeLogString(string(bodyBytes)))
	}

	var apiResp deepseekResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("deepseek: parsing response JSON: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("deepseek: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("deepseek: returned no choices")
	}

	slog.Debug("Received DeepSeek chat response",
		slog.String("finish_reason", apiResp.Choices[0].FinishReason),
		slog.Int("response_len", len(apiResp.Choices[0].Message.Content)),
	)

	return apiResp.Choices[0].Message.Content, nil
}
