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
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/pkg/validation"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/format"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/history"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/middleware"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
	"github.com/AleutianAI/AleutianNetOps/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// AnalysisHandler defines the contract for the engine-backed endpoints:
// device health analysis, query routing, the combined ask flow, and the
// chat surfaces.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
// HTTP handlers are called concurrently by the Gin framework.
type AnalysisHandler interface {
	// HandleHealthAnalysis processes POST /v1/analysis/health requests:
	// fetch the requested devices from inventory, classify each through
	// the decision engine, and return the reports worst-first with a
	// rendered markdown summary.
	HandleHealthAnalysis(c *gin.Context)

	// HandleRouteQuery processes POST /v1/analysis/route requests:
	// run query-intent analysis and return the routing decision with a
	// rendered explanation.
	HandleRouteQuery(c *gin.Context)

	// HandleAsk processes POST /v1/ask requests: route the query, run
	// the selected tool, and phrase an answer, via the LLM when one is
	// configured.
	HandleAsk(c *gin.Context)

	// HandleChat processes POST /v1/chat requests: send the conversation
	// history to the LLM backend in one shot, optionally grounded on a
	// named device's health analysis.
	HandleChat(c *gin.Context)

	// HandleChatWebsocket upgrades GET /v1/chat/ws to a websocket and
	// runs the streaming chat loop: each inbound question is routed,
	// answered through the recommended tool, and streamed back.
	HandleChatWebsocket(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// analysisHandler implements AnalysisHandler for production use.
//
// # Fields
//
//   - engine: Decision engine for classification and routing. Required.
//   - inventory: Inventory API client. May be nil; device-backed flows
//     then report the inventory as unavailable.
//   - historian: InfluxDB health sample writer. May be nil.
//   - history: Local decision history store. May be nil.
//   - llmClient: LLM backend for answer phrasing and direct chat. May be
//     nil; the ask flow then answers with the rendered tool output alone
//     and direct chat reports the backend as unavailable.
//   - opts: Extension options for enterprise features (auth, audit, filter).
//
// # Thread Safety
//
// Thread-safe. All dependency fields are read-only after construction;
// the cache counter snapshot is mutex-guarded.
type analysisHandler struct {
	engine    *decision.Engine
	inventory *inventory.Client
	historian *inventory.Historian
	history   *history.Store
	llmClient llm.LLMClient
	formatter *format.MarkdownFormatter
	opts      extensions.ServiceOptions
	tracer    trace.Tracer

	// lastCache holds the engine cache counters as of the previous
	// metrics sync so only the movement since then is added.
	cacheMu   sync.Mutex
	lastCache decision.CacheStats
}

// NewAnalysisHandler creates an AnalysisHandler with the provided
// dependencies. Panics if engine is nil; every other dependency is
// optional and degrades the matching flow when absent.
func NewAnalysisHandler(
	engine *decision.Engine,
	inv *inventory.Client,
	historian *inventory.Historian,
	histStore *history.Store,
	llmClient llm.LLMClient,
	opts extensions.ServiceOptions,
) AnalysisHandler {
	if engine == nil {
		panic("NewAnalysisHandler: engine must not be nil")
	}
	return &analysisHandler{
		engine:    engine,
		inventory: inv,
		historian: historian,
		history:   histStore,
		llmClient: llmClient,
		formatter: format.NewMarkdownFormatter(),
		opts:      opts,
		tracer:    otel.Tracer("aleutian.netops.handlers.analysis"),
	}
}

// =============================================================================
// Health Analysis
// =============================================================================

// HandleHealthAnalysis processes device health analysis requests.
//
// # Description
//
// Handles POST /v1/analysis/health requests. The flow is:
//  1. Parse and validate the request body
//  2. Validate every device ID against the inventory naming rules
//  3. Fetch the devices from inventory in parallel
//  4. Classify each fetched device through the decision engine
//  5. Record samples to the historian and the local history store
//  6. Sort reports worst-first and render the markdown summary
//
// Devices the inventory could not resolve appear in the failures map
// instead of failing the whole request.
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: Analysis completed (individual devices may still have failed)
//   - 400 Bad Request: Invalid request body or device IDs
//   - 403 Forbidden: Authorization denied
//   - 503 Service Unavailable: Inventory is not configured
func (h *analysisHandler) HandleHealthAnalysis(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointHealthAnalysis

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleHealthAnalysis")
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

	var req datatypes.HealthAnalysisRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse the health analysis request", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.EnsureDefaults()

	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Int("request.device_count", len(req.DeviceIDs)),
	)

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Health analysis request validation failed",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	if err := validation.ValidateDeviceIDs(req.DeviceIDs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid device IDs")
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authorize(ctx, c, span, userID, req.RequestID, "analyze", "devices", ""); err != nil {
		return
	}

	if h.inventory == nil {
		span.SetStatus(codes.Error, "inventory not configured")
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInventory)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "inventory not configured"})
		return
	}

	devices, failures := h.inventory.FetchDevices(ctx, req.DeviceIDs)

	resp := datatypes.NewHealthAnalysisResponse(req.RequestID)
	for _, deviceID := range req.DeviceIDs {
		device, ok := devices[deviceID]
		if !ok {
			continue
		}

		result, err := h.engine.ClassifyHealth(ctx, device, req.Domain)
		if err != nil {
			slog.Warn("Health classification failed", "device_id", deviceID, "error", err)
			failures[deviceID] = "Error: " + err.Error()
			continue
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordDecision(req.Domain, result.Status, result.Score)
		}

		resp.Reports = append(resp.Reports, datatypes.DeviceHealthReport{
			DeviceID: deviceID,
			Result:   result,
		})

		h.recordSample(ctx, device, deviceID, result)
	}
	if len(failures) > 0 {
		resp.Failures = failures
	}

	// Worst devices first so truncated summaries never hide the fires.
	sort.SliceStable(resp.Reports, func(i, j int) bool {
		ri := resp.Reports[i].Result.Status.Rank()
		rj := resp.Reports[j].Result.Status.Rank()
		if ri != rj {
			return ri < rj
		}
		return resp.Reports[i].DeviceID < resp.Reports[j].DeviceID
	})

	if summary, err := h.formatter.Format(resp); err == nil {
		resp.Summary = summary
	} else {
		slog.Warn("Failed to render analysis summary", "error", err, "requestId", req.RequestID)
	}

	resp.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	h.syncCacheMetrics()

	span.SetAttributes(
		attribute.Int("analysis.report_count", len(resp.Reports)),
		attribute.Int("analysis.failure_count", len(resp.Failures)),
	)

	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "decision.health",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       "analyze",
		ResourceType: "device",
		Outcome:      "success",
		Metadata: map[string]any{
			"request_id":    req.RequestID,
			"device_count":  len(req.DeviceIDs),
			"failure_count": len(resp.Failures),
		},
	})

	c.JSON(http.StatusOK, resp)
	success = true
}

// recordSample pushes one classification to the historian and the local
// history store. Both are best effort; a telemetry outage must not fail
// the analysis that produced the decision.
func (h *analysisHandler) recordSample(ctx context.Context, device *inventory.Device,
	deviceID string, result *decision.DecisionResult) {

	if h.historian != nil {
		err := h.historian.WriteHealthSample(ctx, device, result)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordHistorianWrite(err == nil)
		}
		if err != nil {
			slog.Warn("Failed to write health sample", "device_id", deviceID, "error", err)
		}
	}

	if h.history != nil {
		if err := h.history.Append(ctx, deviceID, result); err != nil {
			slog.Warn("Failed to record decision history", "device_id", deviceID, "error", err)
		}
	}
}

// authorize runs the extension authorization check and writes the 403
// response on denial. Returns a non-nil error when the request was
// rejected and the handler must stop.
func (h *analysisHandler) authorize(ctx context.Context, c *gin.Context, span trace.Span,
	userID, requestID, action, resourceType, resourceID string) error {

	err := h.opts.AuthzProvider.Authorize(ctx, extensions.AuthzRequest{
		User:         middleware.GetAuthInfo(c),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})
	if err == nil {
		return nil
	}

	span.SetStatus(codes.Error, "authorization denied")
	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "authz.denied",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      "denied",
		Metadata: map[string]any{
			"request_id": requestID,
			"reason":     err.Error(),
		},
	})
	c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	return err
}

// syncCacheMetrics publishes the engine rule-cache counters, adding only
// the movement since the previous sync.
func (h *analysisHandler) syncCacheMetrics() {
	m := observability.DefaultMetrics
	if m == nil {
		return
	}
	h.cacheMu.Lock()
	defer h.cacheMu.Unlock()
	curr := h.engine.CacheStats()
	m.SyncCacheStats(h.lastCache, curr)
	h.lastCache = curr
}
