// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/middleware"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
)

// CreateRuleDocument handles knowledge document ingestion requests.
//
// # Description
//
// Handles POST /v1/documents. The document body is split into chunks,
// embedded, and written to the rule store; re-ingesting the same source
// replaces its prior chunks. Requires write access to the knowledge
// resource.
//
// # Outputs
//
// HTTP Status:
//   - 201 Created: Document ingested
//   - 400 Bad Request: Invalid body or missing source/content
//   - 403 Forbidden: Authorization denied
//   - 500 Internal Server Error: Ingestion failure
func CreateRuleDocument(ing *knowledge.Ingestor, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointDocuments
		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(endpoint, success)
			}
		}()

		var req knowledge.IngestRequest
		if err := c.BindJSON(&req); err != nil {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Source == "" || req.Content == "" {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "source and content are required"})
			return
		}

		ctx := c.Request.Context()
		if !authorizeRequest(ctx, c, opts, "write", "knowledge", req.Source) {
			return
		}

		chunks, err := ing.Ingest(ctx, req)
		if err != nil {
			slog.Error("Document ingestion failed", "source", req.Source, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeRuleStore)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "knowledge.ingest",
			Timestamp:    time.Now().UTC(),
			UserID:       requestUserID(c),
			Action:       "write",
			ResourceType: "knowledge",
			ResourceID:   req.Source,
			Outcome:      "success",
			Metadata:     map[string]any{"chunks": chunks},
		})

		c.JSON(http.StatusCreated, gin.H{
			"status":           "success",
			"source":           req.Source,
			"chunks_processed": chunks,
		})
		success = true
	}
}

// DeleteRuleDocuments handles knowledge document deletion requests.
//
// DELETE /v1/documents?source=<source> removes every chunk previously
// ingested from that source. Requires delete access to the knowledge
// resource. When the source was an executable rule pack the engine's rule
// cache is dropped so deleted rules stop being applied.
func DeleteRuleDocuments(engine *decision.Engine, writer knowledge.DocumentWriter, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointDocuments
		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(endpoint, success)
			}
		}()

		source := c.Query("source")
		if source == "" {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "source query parameter is required"})
			return
		}

		ctx := c.Request.Context()
		if !authorizeRequest(ctx, c, opts, "delete", "knowledge", source) {
			return
		}

		if err := writer.DeleteBySource(ctx, source); err != nil {
			slog.Error("Document deletion failed", "source", source, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeRuleStore)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if engine != nil {
			engine.ClearRuleCache()
		}

		_ = opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "knowledge.delete",
			Timestamp:    time.Now().UTC(),
			UserID:       requestUserID(c),
			Action:       "delete",
			ResourceType: "knowledge",
			ResourceID:   source,
			Outcome:      "success",
		})

		c.JSON(http.StatusOK, gin.H{
			"status": "success",
			"source": source,
		})
		success = true
	}
}

// requestUserID resolves the authenticated user on a request, defaulting
// to anonymous when the auth middleware is not in the chain.
func requestUserID(c *gin.Context) string {
	if authInfo := middleware.GetAuthInfo(c); authInfo != nil {
		return authInfo.UserID
	}
	return "anonymous"
}

// authorizeRequest runs the extension authorization check for factory
// handlers. On denial it audits the rejection, writes the 403 response,
// and returns false.
func authorizeRequest(ctx context.Context, c *gin.Context, opts extensions.ServiceOptions,
	action, resourceType, resourceID string) bool {

	err := opts.AuthzProvider.Authorize(ctx, extensions.AuthzRequest{
		User:         middleware.GetAuthInfo(c),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
	if err == nil {
		return true
	}

	_ = opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "authz.denied",
		Timestamp:    time.Now().UTC(),
		UserID:       requestUserID(c),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      "denied",
		Metadata:     map[string]any{"reason": err.Error()},
	})
	c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	return false
}
