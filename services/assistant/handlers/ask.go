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
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/pkg/validation"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/middleware"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
	"github.com/AleutianAI/AleutianNetOps/services/llm"
)

// askRegionPattern captures the region code in phrasings like
// "in HOBO region" or "in the HOBO region".
var askRegionPattern = regexp.MustCompile(`(?i)\bin\s+(?:the\s+)?([A-Za-z][A-Za-z0-9-]{1,15})\s+region\b`)

// askEnvironments are the deployment environments the listing filter
// recognizes when a query names one ("devices in UAT").
var askEnvironments = map[string]bool{
	"UAT":        true,
	"PRODUCTION": true,
	"STAGING":    true,
	"TEST":       true,
}

// HandleAsk processes combined ask requests.
//
// # Description
//
// Handles POST /v1/ask requests. This is the single-shot assistant flow:
//  1. Filter the query through the extension content filter
//  2. Route the query to an analysis type and tool recommendation
//  3. Run the recommended tool against inventory and the engine
//  4. Phrase the answer, via the LLM backend when one is configured
//
// Tool failures degrade rather than fail: the answer falls back to the
// routing explanation so the operator always gets a response. The answer
// passes through the extension output filter before it leaves.
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: Answer produced
//   - 400 Bad Request: Invalid request body
//   - 403 Forbidden: Authorization denied or query/answer blocked by filter
//   - 500 Internal Server Error: Filter or engine failure
func (h *analysisHandler) HandleAsk(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointAsk

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleAsk")
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

	var req datatypes.AskRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse the ask request", "error", err)
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
		slog.Error("Ask request validation failed",
			"error", err,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeValidation)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: validation failed"})
		return
	}

	if err := h.authorize(ctx, c, span, userID, req.RequestID, "analyze", "chat", ""); err != nil {
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
	span.SetAttributes(
		attribute.String("routing.analysis_type", string(dec.AnalysisType)),
		attribute.String("routing.tool", dec.ToolRecommendation),
	)

	toolOutput, sources, toolErr := h.runTool(ctx, dec, query)
	if toolErr != nil {
		span.RecordError(toolErr)
		slog.Warn("Ask tool dispatch failed",
			"tool", dec.ToolRecommendation,
			"error", toolErr,
			"requestId", req.RequestID,
		)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInventory)
		}
	}

	answer := h.phraseAnswer(ctx, endpoint, query, dec, toolOutput)

	filteredAnswer, filterErr := h.opts.QueryFilter.FilterOutput(ctx, answer)
	if filterErr != nil {
		span.RecordError(filterErr)
		span.SetStatus(codes.Error, "answer filter failed")
		slog.Error("Answer filter failed", "error", filterErr, "requestId", req.RequestID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeInternal)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "answer processing failed"})
		return
	}
	if filteredAnswer.WasBlocked {
		_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
			EventType:    "chat.blocked",
			Timestamp:    time.Now().UTC(),
			UserID:       userID,
			Action:       "send",
			ResourceType: "chat",
			ResourceID:   string(endpoint),
			Outcome:      "blocked",
			Metadata: map[string]any{
				"request_id": req.RequestID,
				"direction":  "output",
				"reason":     filteredAnswer.BlockReason,
			},
		})
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeQueryBlocked)
		}
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "answer blocked by content filter",
			"reason": filteredAnswer.BlockReason,
		})
		return
	}

	resp := datatypes.NewAskResponse(req.RequestID, filteredAnswer.Filtered)
	resp.Routing = dec
	resp.Sources = sources
	resp.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	h.syncCacheMetrics()

	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "chat.message",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       "send",
		ResourceType: "chat",
		ResourceID:   string(endpoint),
		Outcome:      "success",
		Metadata: map[string]any{
			"request_id":    req.RequestID,
			"analysis_type": string(dec.AnalysisType),
			"tool":          dec.ToolRecommendation,
		},
	})

	c.JSON(http.StatusOK, resp)
	success = true
}

// runTool executes the tool the routing decision recommends and returns
// its rendered markdown output plus the data sources it consulted. A
// general query, or a query missing the identifiers the tool needs,
// returns empty output with a nil error so the answer falls back to
// routing-only phrasing.
func (h *analysisHandler) runTool(ctx context.Context, dec *decision.RoutingDecision,
	query string) (string, []string, error) {

	switch dec.AnalysisType {
	case decision.AnalysisDeviceListing:
		return h.listDevicesTool(ctx, query)
	case decision.AnalysisDeviceDetails:
		return h.deviceDetailsTool(ctx, query)
	case decision.AnalysisComplexAnalysis:
		return h.impactAnalysisTool(ctx, query)
	default:
		return "", nil, nil
	}
}

// listDevicesTool answers inventory and count questions. A region or
// environment named in the query narrows the listing.
func (h *analysisHandler) listDevicesTool(ctx context.Context, query string) (string, []string, error) {
	if h.inventory == nil {
		return "", nil, fmt.Errorf("inventory not configured")
	}

	filter := extractListingFilter(query)
	devices, err := h.inventory.ListDevices(ctx, filter)
	if err != nil {
		return "", nil, fmt.Errorf("list devices: %w", err)
	}

	refs := make([]*inventory.Device, len(devices))
	for i := range devices {
		refs[i] = &devices[i]
	}

	out, err := h.formatter.Format(refs)
	if err != nil {
		return "", nil, fmt.Errorf("format device listing: %w", err)
	}

	sources := []string{"tool:" + decision.ToolListNetworkDevices}
	if filter.Region != "" {
		sources = append(sources, "region:"+filter.Region)
	}
	return out, sources, nil
}

// deviceDetailsTool answers questions about one named device: its
// inventory record plus a fresh health classification.
func (h *analysisHandler) deviceDetailsTool(ctx context.Context, query string) (string, []string, error) {
	if h.inventory == nil {
		return "", nil, fmt.Errorf("inventory not configured")
	}

	ids := extractDeviceIDs(query)
	if len(ids) == 0 {
		return "", nil, nil
	}
	deviceID := ids[0]

	out, err := h.deviceContext(ctx, deviceID)
	if err != nil {
		return "", nil, err
	}

	sources := []string{"tool:" + decision.ToolGetDeviceDetails, "inventory:" + deviceID}
	return out, sources, nil
}

// deviceContext renders one device's inventory record plus a fresh
// health classification as markdown, for grounding an answer on that
// device. Classification failure drops the health section rather than
// the whole context.
func (h *analysisHandler) deviceContext(ctx context.Context, deviceID string) (string, error) {
	if h.inventory == nil {
		return "", fmt.Errorf("inventory not configured")
	}

	device, err := h.inventory.GetDevice(ctx, deviceID)
	if err != nil {
		return "", fmt.Errorf("get device %s: %w", deviceID, err)
	}

	var b strings.Builder
	if deviceMD, fmtErr := h.formatter.Format(device); fmtErr == nil {
		b.WriteString(deviceMD)
	}

	result, err := h.engine.ClassifyHealth(ctx, device, decision.DefaultHealthDomain)
	if err == nil {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordDecision(decision.DefaultHealthDomain, result.Status, result.Score)
		}
		health := datatypes.NewHealthAnalysisResponse("")
		health.Reports = []datatypes.DeviceHealthReport{{DeviceID: deviceID, Result: result}}
		if healthMD, fmtErr := h.formatter.Format(health); fmtErr == nil {
			b.WriteString("\n")
			b.WriteString(healthMD)
		}
	}

	return b.String(), nil
}

// impactAnalysisTool answers multi-device analysis questions: every
// device named in the query is fetched and classified, worst first.
func (h *analysisHandler) impactAnalysisTool(ctx context.Context, query string) (string, []string, error) {
	if h.inventory == nil {
		return "", nil, fmt.Errorf("inventory not configured")
	}

	ids := extractDeviceIDs(query)
	if len(ids) == 0 {
		return "", nil, nil
	}

	devices, failures := h.inventory.FetchDevices(ctx, ids)

	health := datatypes.NewHealthAnalysisResponse("")
	sources := []string{"tool:" + decision.ToolAnalyzeNetworkImpact}
	for _, id := range ids {
		device, ok := devices[id]
		if !ok {
			continue
		}
		result, err := h.engine.ClassifyHealth(ctx, device, decision.DefaultHealthDomain)
		if err != nil {
			failures[id] = "Error: " + err.Error()
			continue
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordDecision(decision.DefaultHealthDomain, result.Status, result.Score)
		}
		health.Reports = append(health.Reports, datatypes.DeviceHealthReport{DeviceID: id, Result: result})
		sources = append(sources, "inventory:"+id)
	}
	if len(failures) > 0 {
		health.Failures = failures
	}
	if len(health.Reports) == 0 && len(failures) > 0 {
		return "", nil, fmt.Errorf("no devices resolved: %d lookup failures", len(failures))
	}

	out, err := h.formatter.Format(health)
	if err != nil {
		return "", nil, fmt.Errorf("format impact analysis: %w", err)
	}
	return out, sources, nil
}

// phraseAnswer turns the tool output into the final answer. With an LLM
// configured the tool output becomes grounding data for a short phrased
// response; without one, or when generation fails, the rendered markdown
// is the answer. A general query with no tool output falls back to the
// routing explanation.
func (h *analysisHandler) phraseAnswer(ctx context.Context, endpoint observability.Endpoint,
	query string, dec *decision.RoutingDecision, toolOutput string) string {

	fallback := toolOutput
	if fallback == "" {
		if explanation, err := h.formatter.Format(dec); err == nil {
			fallback = explanation
		} else {
			fallback = dec.Reasoning
		}
	}

	if h.llmClient == nil {
		return fallback
	}

	temperature := float32(0.2)
	maxTokens := 512
	params := llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	answer, err := h.llmClient.Generate(ctx, askPrompt(query, toolOutput, dec), params)
	if err != nil {
		slog.Warn("LLM answer generation failed, using rendered output", "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeLLMError)
		}
		return fallback
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fallback
	}
	return answer
}

// askPrompt builds the grounding prompt for answer phrasing. The model
// is instructed to stay inside the retrieved data so a hallucinated
// device never reaches an operator.
func askPrompt(query, toolOutput string, dec *decision.RoutingDecision) string {
	var b strings.Builder
	b.WriteString("You are a network operations assistant for an FTTH access network.\n")
	b.WriteString("Answer the operator's question using only the data below. ")
	b.WriteString("Be concise and concrete. If the data does not contain the answer, say so.\n\n")
	b.WriteString("Question: ")
	b.WriteString(query)
	b.WriteString("\n\n")
	if toolOutput != "" {
		b.WriteString("Data:\n")
		b.WriteString(toolOutput)
		b.WriteString("\n")
	} else {
		b.WriteString("Data: none retrieved. Routing analysis: ")
		b.WriteString(dec.Reasoning)
		b.WriteString("\n")
	}
	return b.String()
}

// extractDeviceIDs pulls device identifiers out of free text: tokens
// that pass inventory device-ID validation and contain both a letter and
// a digit, deduplicated in order of appearance.
func extractDeviceIDs(query string) []string {
	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return !(r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})

	seen := make(map[string]bool)
	var ids []string
	for _, tok := range tokens {
		candidate := strings.ToUpper(tok)
		if seen[candidate] {
			continue
		}
		if validation.ValidateDeviceID(candidate) != nil {
			continue
		}
		var hasLetter, hasDigit bool
		for _, r := range candidate {
			switch {
			case r >= 'A' && r <= 'Z':
				hasLetter = true
			case r >= '0' && r <= '9':
				hasDigit = true
			}
		}
		if !hasLetter || !hasDigit {
			continue
		}
		seen[candidate] = true
		ids = append(ids, candidate)
		if len(ids) >= datatypes.MaxDevicesPerAnalysis {
			break
		}
	}
	return ids
}

// extractListingFilter derives an inventory filter from the query text.
// "in HOBO region" narrows by region; a bare environment name such as
// "UAT" narrows by environment.
func extractListingFilter(query string) inventory.DeviceFilter {
	var filter inventory.DeviceFilter

	if m := askRegionPattern.FindStringSubmatch(query); m != nil {
		if region, err := validation.SanitizeRegion(strings.ToUpper(m[1])); err == nil {
			filter.Region = region
		}
	}

	for _, tok := range strings.Fields(query) {
		candidate := strings.ToUpper(strings.Trim(tok, ".,?!"))
		if askEnvironments[candidate] {
			filter.Environment = candidate
			break
		}
	}

	return filter
}
