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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers binds the HTTP surface to the Service.
type Handlers struct {
	service    *Service
	readyCheck func(context.Context) error
	logger     *slog.Logger
}

// NewHandlers creates the handler set.
//
// Inputs:
//   - service: Must not be nil.
//   - readyCheck: Optional readiness probe (typically the database
//     pool's Ping). Nil means always ready.
//   - logger: May be nil.
func NewHandlers(service *Service, readyCheck func(context.Context) error, logger *slog.Logger) *Handlers {
	if service == nil {
		panic("NewHandlers: service must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, readyCheck: readyCheck, logger: logger}
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleHealth handles GET /v1/mentor/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// HandleReady handles GET /v1/mentor/ready.
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.readyCheck != nil {
		if err := h.readyCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: err.Error(),
				Code:  "NOT_READY",
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// HandleTools handles GET /v1/mentor/tools.
func (h *Handlers) HandleTools(c *gin.Context) {
	c.JSON(http.StatusOK, ToolsResponse{Tools: h.service.Registry().Names()})
}

// HandleTypes handles GET /v1/mentor/types.
func (h *Handlers) HandleTypes(c *gin.Context) {
	c.JSON(http.StatusOK, FeedbackTypesResponse{FeedbackTypes: []FeedbackTypeInfo{
		{
			Type:        "coordinator",
			Endpoint:    "/v1/mentor/feedback/coordinator",
			Description: "Strategic analysis for academic coordinators",
			Input:       map[string]string{"message": "the coordinator's question"},
			Output:      map[string]string{"response": "personalized strategic analysis"},
		},
		{
			Type:        "coordinator-chat",
			Endpoint:    "/v1/mentor/feedback/coordinator/chat",
			Description: "Asynchronous strategic analysis streamed to a webhook",
			Input:       map[string]string{"sessionId": "string", "message": "string", "callbackUrl": "string"},
			Output:      map[string]string{"sessionId": "string", "message": "string", "messageType": "status", "isComplete": "bool"},
		},
		{
			Type:        "teacher",
			Endpoint:    "/v1/mentor/feedback/teacher",
			Description: "Pedagogical analysis for teachers",
			Input:       map[string]string{"message": "the teacher's question"},
			Output:      map[string]string{"response": "personalized pedagogical analysis"},
		},
		{
			Type:        "teacher-chat",
			Endpoint:    "/v1/mentor/feedback/teacher/chat",
			Description: "Asynchronous pedagogical analysis streamed to a webhook",
			Input:       map[string]string{"sessionId": "string", "message": "string", "callbackUrl": "string"},
			Output:      map[string]string{"sessionId": "string", "message": "string", "messageType": "status", "isComplete": "bool"},
		},
		{
			Type:        "team",
			Endpoint:    "/v1/mentor/feedback/team",
			Description: "Structured team feedback from submitted evaluations",
			Input:       map[string]string{"submission": "object", "evaluations": "array"},
			Output:      map[string]string{"feedback": "structured team feedback"},
		},
	}})
}

// HandleCoordinatorFeedback handles POST /v1/mentor/feedback/coordinator.
func (h *Handlers) HandleCoordinatorFeedback(c *gin.Context) {
	h.handleSyncFeedback(c, RoleCoordinator)
}

// HandleTeacherFeedback handles POST /v1/mentor/feedback/teacher.
func (h *Handlers) HandleTeacherFeedback(c *gin.Context) {
	h.handleSyncFeedback(c, RoleTeacher)
}

func (h *Handlers) handleSyncFeedback(c *gin.Context, role string) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("role", role))

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	answer, err := h.service.RunSync(c.Request.Context(), role, req.Message, nil)
	if err != nil {
		logger.Error("synchronous feedback failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "FEEDBACK_FAILED"})
		return
	}

	c.JSON(http.StatusOK, FeedbackResponse{Response: answer})
}

// HandleCoordinatorChat handles POST /v1/mentor/feedback/coordinator/chat.
func (h *Handlers) HandleCoordinatorChat(c *gin.Context) {
	h.handleChat(c, RoleCoordinator)
}

// HandleTeacherChat handles POST /v1/mentor/feedback/teacher/chat.
func (h *Handlers) HandleTeacherChat(c *gin.Context) {
	h.handleChat(c, RoleTeacher)
}

func (h *Handlers) handleChat(c *gin.Context, role string) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID), slog.String("role", role))

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	// The endpoint decides the persona; a mismatched userRole field is
	// rejected rather than silently rerouted.
	if req.UserRole != "" && req.UserRole != role {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "userRole does not match the endpoint",
			Code:  "ROLE_MISMATCH",
		})
		return
	}

	logger.Info("accepted async session", slog.String("session_id", req.SessionID))
	h.service.StartSession(req.SessionID, role, req.Message, req.PreviousMessages, req.CallbackURL)

	c.JSON(http.StatusAccepted, statusMessage(req.SessionID, "Message received, starting analysis..."))
}

// HandleTeamFeedback handles POST /v1/mentor/feedback/team.
func (h *Handlers) HandleTeamFeedback(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID))

	var req TeamFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	logger.Info("generating team feedback",
		slog.Int64("submission_id", req.Submission.ID),
		slog.Int("evaluations", len(req.Evaluations)),
	)
	fb := h.service.TeamFeedback(c.Request.Context(), req.Submission, req.Evaluations)

	c.JSON(http.StatusOK, fb)
}
