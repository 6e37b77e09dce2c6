// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mentor

import (
	"time"

	"github.com/AleutianAI/AleutianMentor/services/mentor/feedback"
)

// User roles accepted by the feedback endpoints.
const (
	RoleCoordinator = "coordinator"
	RoleTeacher     = "teacher"
)

// Chat message types on the wire.
const (
	MessageTypeStatus    = "status"
	MessageTypeAssistant = "assistant"
	MessageTypeError     = "error"
)

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// FeedbackRequest is the synchronous feedback request body.
type FeedbackRequest struct {
	Message string `json:"message" binding:"required,min=1,max=2000"`
}

// FeedbackResponse carries a synchronous agent answer.
type FeedbackResponse struct {
	Response string `json:"response"`
}

// ChatRequest is the asynchronous (webhook-streamed) request body.
// SessionID may be empty; the handler assigns one.
type ChatRequest struct {
	SessionID        string   `json:"sessionId"`
	Message          string   `json:"message" binding:"required,min=1,max=2000"`
	UserRole         string   `json:"userRole" binding:"omitempty,oneof=coordinator teacher"`
	PreviousMessages []string `json:"previousMessages"`
	CallbackURL      string   `json:"callbackUrl" binding:"required,url"`
}

// ChatMessageResponse is the immediate acknowledgement for async chat.
type ChatMessageResponse struct {
	SessionID   string    `json:"sessionId"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
	IsComplete  bool      `json:"isComplete"`
}

func statusMessage(sessionID, message string) ChatMessageResponse {
	return ChatMessageResponse{
		SessionID:   sessionID,
		Message:     message,
		MessageType: MessageTypeStatus,
		Timestamp:   time.Now().UTC(),
		IsComplete:  false,
	}
}

func errorMessage(sessionID, message string) ChatMessageResponse {
	return ChatMessageResponse{
		SessionID:   sessionID,
		Message:     message,
		MessageType: MessageTypeError,
		Timestamp:   time.Now().UTC(),
		IsComplete:  true,
	}
}

// TeamFeedbackRequest is the loop-free pipeline request body.
type TeamFeedbackRequest struct {
	Submission  feedback.Submission  `json:"submission" binding:"required"`
	Evaluations []feedback.Evaluation `json:"evaluations" binding:"required,min=1"`
}

// FeedbackTypeInfo documents one feedback endpoint in the /types catalog.
type FeedbackTypeInfo struct {
	Type        string            `json:"type"`
	Endpoint    string            `json:"endpoint"`
	Description string            `json:"description"`
	Input       map[string]string `json:"input"`
	Output      map[string]string `json:"output"`
}

// FeedbackTypesResponse lists the available feedback types.
type FeedbackTypesResponse struct {
	FeedbackTypes []FeedbackTypeInfo `json:"feedbackTypes"`
}

// ToolsResponse lists the registered capability names.
type ToolsResponse struct {
	Tools []string `json:"tools"`
}
