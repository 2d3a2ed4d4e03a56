// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/handlers"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/history"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/middleware"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
	"github.com/AleutianAI/AleutianNetOps/services/llm"
)

// Dependencies carries everything SetupRoutes can wire. Engine is
// required; every other field is optional and gates its own route group,
// so a lightweight deployment simply leaves fields nil.
type Dependencies struct {
	Engine    *decision.Engine
	Inventory *inventory.Client
	Historian *inventory.Historian
	History   *history.Store
	LLM       llm.LLMClient
	Ingestor  *knowledge.Ingestor
	Documents knowledge.DocumentWriter
	Embedder  decision.EmbeddingProvider
}

// SetupRoutes registers the assistant's HTTP surface on the router.
//
// /health and /metrics are unauthenticated. Everything under /v1 passes
// through the auth middleware. Device, document, history, and direct
// chat routes are only registered when their backing dependency is
// configured; probing them in a lightweight deployment returns 404
// rather than a half-wired handler.
func SetupRoutes(router *gin.Engine, deps Dependencies, opts extensions.ServiceOptions) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	analysis := handlers.NewAnalysisHandler(deps.Engine, deps.Inventory, deps.Historian,
		deps.History, deps.LLM, opts)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opts.AuthProvider))
	{
		v1.POST("/analysis/health", analysis.HandleHealthAnalysis)
		v1.POST("/analysis/route", analysis.HandleRouteQuery)
		v1.POST("/ask", analysis.HandleAsk)
		v1.GET("/chat/ws", analysis.HandleChatWebsocket)

		if deps.LLM != nil {
			v1.POST("/chat", analysis.HandleChat)
		}
		if deps.Inventory != nil {
			v1.GET("/devices", handlers.ListNetworkDevices(deps.Inventory))
			v1.GET("/devices/:deviceId", handlers.GetDeviceDetails(deps.Inventory, deps.Engine))
		}
		if deps.Ingestor != nil {
			v1.POST("/documents", handlers.CreateRuleDocument(deps.Ingestor, opts))
		}
		if deps.Documents != nil {
			v1.DELETE("/documents", handlers.DeleteRuleDocuments(deps.Engine, deps.Documents, opts))
			v1.POST("/rulepacks", handlers.UploadRulePack(deps.Engine, deps.Documents, deps.Embedder, opts))
		}
		if deps.History != nil {
			v1.GET("/history/:deviceId", handlers.GetDecisionHistory(deps.History))
		}
	}
}
