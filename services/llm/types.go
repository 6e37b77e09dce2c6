// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides chat-completion clients for the Mentor agent.
//
// The primary backend is DeepSeek, reached through its OpenAI-compatible
// REST API with raw net/http (no SDK). The package also carries the
// redaction helpers used to keep API keys out of logs and the Prometheus
// metrics shared by every client call.
package llm

import "context"

// Message is one turn of a conversation.
//
// Thread Safety: Message is immutable once constructed and safe for
// concurrent read access.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// GenerationParams holds per-request generation options.
//
// Description:
//
//	All fields are optional pointers (or zero values) so that omitted
//	options fall back to the provider's defaults rather than sending an
//	explicit zero on the wire.
type GenerationParams struct {
	// Temperature controls randomness (0.0-2.0). Nil omits the field.
	Temperature *float32

	// MaxTokens limits the response length. Nil omits the field.
	MaxTokens *int

	// TopP is the nucleus sampling cutoff. Nil omits the field.
	TopP *float32

	// Stop lists stop sequences.
	Stop []string

	// ModelOverride selects a different model for this request only.
	ModelOverride string
}

// ChatClient is the minimal chat interface consumed by the agent loop,
// the result classifier, and the team feedback pipeline.
//
// Description:
//
//	The orchestration loop and the classifier only need plain multi-turn
//	chat (no function calling, no streaming); the tool protocol rides
//	inside message text. Keeping the interface this small makes test
//	doubles trivial.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends the conversation and returns the assistant's reply text.
	//
	// Outputs:
	//   - string: The assistant's response text. Empty only alongside an error.
	//   - error: Non-nil on transport failure, timeout, or API error.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Ptr returns a pointer to v. Convenience for populating GenerationParams.
func Ptr[T any](v T) *T { return &v }
