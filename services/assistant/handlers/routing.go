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
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/middleware"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

// HandleRouteQuery processes query routing requests.
//
// # Description
//
// Handles POST /v1/analysis/route requests. The query runs through the
// extension content filter, then the decision engine's routing analysis.
// The response carries the structured decision plus a rendered markdown
// explanation an operator can read directly.
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: Routing decision produced
//   - 400 Bad Request: Invalid request body
//   - 403 Forbidden: Authorization denied or query blocked by filter
//   - 500 Internal Server Error: Filter or engine failure
func (h *analysisHandler) HandleRouteQuery(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointRoute

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleRouteQuery")
	defer span.End()

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, success)
		}
	}()

	userID := "anonymous"
	if authInfo := middleware.GetAuthInfo(c); authInfo != nil {
		userID = authInfo.UserID
	}
	span.SetAttributes(attribute.String("user.id", userID))

	var req datatypes.RouteRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse the route request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.EnsureDefaults()
	span.SetAttributes(attribute.String("request.id", req.RequestID))

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Route request validation failed",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	if err := h.authorize(ctx, c, span, userID, req.RequestID, "read", "knowledge", ""); err != nil {
		return
	}

	query, ok := h.filterQuery(ctx, c, span, endpoint, userID, req.RequestID, req.Query)
	if !ok {
		return
	}

	dec, err := h.routeQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "routing failed")
		slog.Error("Query routing failed", "error", err, "requestId", req.RequestID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeRuleStore)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to route query"})
		return
	}

	resp := datatypes.NewRouteResponse(req.RequestID, dec)
	if explanation, fmtErr := h.formatter.Format(dec); fmtErr == nil {
		resp.Explanation = explanation
	} else {
		slog.Warn("Failed to render routing explanation", "error", fmtErr, "requestId", req.RequestID)
	}
	resp.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	h.syncCacheMetrics()

	span.SetAttributes(
		attribute.String("routing.analysis_type", string(dec.AnalysisType)),
		attribute.String("routing.confidence", string(dec.ConfidenceLevel)),
	)

	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "decision.route",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       "read",
		ResourceType: "knowledge",
		Outcome:      "success",
		Metadata: map[string]any{
			"request_id":    req.RequestID,
			"analysis_type": string(dec.AnalysisType),
			"confidence":    string(dec.ConfidenceLevel),
		},
	})

	c.JSON(http.StatusOK, resp)
	success = true
}

// routeQuery runs the engine's routing analysis and publishes the probe
// timing and confidence metrics for every caller.
func (h *analysisHandler) routeQuery(ctx context.Context, query string) (*decision.RoutingDecision, error) {
	start := time.Now()
	dec, err := h.engine.RouteQuery(ctx, query)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordProbeDuration(time.Since(start).Seconds())
		if err == nil {
			m.RecordRouting(dec.ConfidenceLevel)
		}
	}
	return dec, err
}

// filterQuery runs a query through the extension content filter before it
// reaches the embedding provider or the LLM. Returns the possibly
// redacted query, or ok=false when the response has already been written
// (filter failure or blocked query).
func (h *analysisHandler) filterQuery(ctx context.Context, c *gin.Context, span trace.Span,
	endpoint observability.Endpoint, userID, requestID, query string) (string, bool) {

	filtered, err := h.opts.QueryFilter.FilterInput(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query filter failed")
		slog.Error("Query filter failed", "error", err, "requestId", requestID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query processing failed"})
		return "", false
	}

	if filtered.WasBlocked {
		_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "chat.blocked",
			Timestamp:    time.Now().UTC(),
			UserID:       userID,
			Action:       "send",
			ResourceType: "chat",
			ResourceID:   string(endpoint),
			Outcome:      "blocked",
			Metadata: map[string]any{
				"request_id": requestID,
				"reason":     filtered.BlockReason,
			},
		})
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeQueryBlocked)
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "query blocked by content filter",
			"reason": filtered.BlockReason,
		})
		return "", false
	}

	return filtered.Filtered, true
}
