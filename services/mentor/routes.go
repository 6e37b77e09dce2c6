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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all Mentor routes with the router.
//
// Description:
//
//	Registers all /v1/mentor/* endpoints with the given Gin router
//	group. The group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET  /v1/mentor/health - Health check
//	GET  /v1/mentor/ready - Readiness check (database reachable)
//	GET  /v1/mentor/types - Catalog of feedback types
//	GET  /v1/mentor/tools - Names of registered capabilities
//
//	POST /v1/mentor/feedback/coordinator - Synchronous coordinator analysis
//	POST /v1/mentor/feedback/teacher - Synchronous teacher analysis
//	POST /v1/mentor/feedback/coordinator/chat - Async analysis, webhook streamed
//	POST /v1/mentor/feedback/teacher/chat - Async analysis, webhook streamed
//	POST /v1/mentor/feedback/team - Loop-free team feedback pipeline
//
// Example:
//
//	service := mentor.NewService(cfg, client, registry, cache, logger)
//	handlers := mentor.NewHandlers(service, pool.Ping, logger)
//
//	v1 := router.Group("/v1")
//	mentor.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	m := rg.Group("/mentor")
	{
		m.GET("/health", handlers.HandleHealth)
		m.GET("/ready", handlers.HandleReady)
		m.GET("/types", handlers.HandleTypes)
		m.GET("/tools", handlers.HandleTools)

		fb := m.Group("/feedback")
		{
			fb.POST("/coordinator", handlers.HandleCoordinatorFeedback)
			fb.POST("/teacher", handlers.HandleTeacherFeedback)
			fb.POST("/coordinator/chat", handlers.HandleCoordinatorChat)
			fb.POST("/teacher/chat", handlers.HandleTeacherChat)
			fb.POST("/team", handlers.HandleTeamFeedback)
		}
	}
}
