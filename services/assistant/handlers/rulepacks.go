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
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
)

// RulePackUploadRequest carries one executable rule pack. Content is the
// raw pack YAML; it is stored whole, never chunked, so the engine can
// parse the exact payload back out at retrieval time.
type RulePackUploadRequest struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// UploadRulePack handles rule pack uploads.
//
// # Description
//
// Handles POST /v1/rulepacks. The pack is compiled before anything is
// written: a pack that fails to parse is rejected with the compiler error
// so authors can fix it, and a valid pack replaces any prior version
// stored under the same source. On success the engine's rule cache is
// dropped so the next decision uses the new pack.
//
// # Outputs
//
// HTTP Status:
//   - 201 Created: Pack stored and active
//   - 400 Bad Request: Invalid body, bad source name, or pack compile error
//   - 403 Forbidden: Authorization denied
//   - 500 Internal Server Error: Store failure
func UploadRulePack(engine *decision.Engine, writer knowledge.DocumentWriter,
	embedder decision.EmbeddingProvider, opts extensions.ServiceOptions) gin.HandlerFunc {

	return func(c *gin.Context) {
		endpoint := observability.EndpointDocuments
		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(endpoint, success)
			}
		}()

		var req RulePackUploadRequest
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
		if req.Source != filepath.Base(req.Source) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "source must be a bare file name"})
			return
		}

		ctx := c.Request.Context()
		if !authorizeRequest(ctx, c, opts, "write", "knowledge", req.Source) {
			return
		}

		// Compile before touching the store so a broken pack cannot
		// replace a working one.
		if _, err := knowledge.ParseRulePack([]byte(req.Content)); err != nil {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rs, err := knowledge.StorePack(ctx, writer, embedder, req.Source, []byte(req.Content))
		if err != nil {
			slog.Error("Rule pack upload failed", "source", req.Source, "error", err)
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
			EventType:    "knowledge.pack_upload",
			Timestamp:    time.Now().UTC(),
			UserID:       requestUserID(c),
			Action:       "write",
			ResourceType: "knowledge",
			ResourceID:   req.Source,
			Outcome:      "success",
			Metadata: map[string]any{
				"name":        rs.Name,
				"domain":      rs.Domain,
				"entity_type": rs.EntityType,
			},
		})

		slog.Info("Rule pack uploaded",
			"source", req.Source,
			"name", rs.Name,
			"domain", rs.Domain,
		)

		c.JSON(http.StatusCreated, gin.H{
			"status":      "success",
			"source":      req.Source,
			"name":        rs.Name,
			"domain":      rs.Domain,
			"entity_type": rs.EntityType,
		})
		success = true
	}
}
