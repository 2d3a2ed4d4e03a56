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
	"github.com/AleutianAI/AleutianNetOps/services/llm"
)

// HandleChat processes direct chat requests.
//
// # Description
//
// Handles POST /v1/chat requests. The full conversation history goes to
// the LLM backend in one shot: no routing, no tool dispatch. When the
// request names a device, that device's inventory record and health
// classification are prepended as grounding context. The newest user
// message passes through the extension content filter on the way in,
// and the answer passes through it on the way out.
//
// Backends that implement multi-turn chat receive the messages as-is;
// Generate-only backends receive the conversation flattened into a
// single prompt.
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: Answer produced
//   - 400 Bad Request: Invalid request body or malformed device ID
//   - 403 Forbidden: Authorization denied or query/answer blocked by filter
//   - 500 Internal Server Error: Filter or generation failure
//   - 503 Service Unavailable: No LLM backend configured
func (h *analysisHandler) HandleChat(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointChat

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChat")
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

	if h.llmClient == nil {
		span.SetStatus(codes.Error, "no LLM backend")
		slog.Warn("Chat request rejected: no LLM backend configured")
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeLLMError)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat backend not configured"})
		return
	}

	var req datatypes.ChatRequest
	if err := c.BindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse the chat request", "error", err)
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
		slog.Error("Chat request validation failed",
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

	// Only the newest user turn passes through the input filter; earlier
	// turns were filtered when they were first sent.
	messages := append([]datatypes.Message(nil), req.Messages...)
	if last := len(messages) - 1; messages[last].Role == "user" {
		filtered, ok := h.filterQuery(ctx, c, span, endpoint, userID, req.RequestID, messages[last].Content)
		if !ok {
			return
		}
		messages[last].Content = filtered
	}

	deviceID := ""
	if req.DeviceID != "" {
		sanitized, err := validation.SanitizeDeviceID(req.DeviceID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid device id")
			slog.Error("Chat device ID rejected", "error", err, "requestId", req.RequestID)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: malformed device ID"})
			return
		}
		deviceID = sanitized
		span.SetAttributes(attribute.String("device.id", deviceID))

		if grounding, err := h.deviceContext(ctx, deviceID); err != nil {
			span.RecordError(err)
			slog.Warn("Chat device grounding failed, answering without it",
				"deviceId", deviceID,
				"error", err,
				"requestId", req.RequestID,
			)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeInventory)
			}
		} else if grounding != "" {
			messages = append([]datatypes.Message{
				{Role: "system", Content: deviceGroundingPrompt(grounding)},
			}, messages...)
		}
	}

	temperature := float32(0.2)
	maxTokens := 1024
	params := llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}

	var answer string
	var genErr error
	if cc, ok := h.llmClient.(llm.ChatClient); ok {
		answer, genErr = cc.Chat(ctx, messages, params)
	} else {
		answer, genErr = h.llmClient.Generate(ctx, flattenChatPrompt(messages), params)
	}
	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, "generation failed")
		slog.Error("Chat generation failed", "error", genErr, "requestId", req.RequestID)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeLLMError)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "chat generation failed"})
		return
	}

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

	resp := datatypes.NewChatResponse(req.RequestID, filteredAnswer.Filtered)
	resp.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	h.syncCacheMetrics()

	auditMeta := map[string]any{
		"request_id":    req.RequestID,
		"message_count": len(req.Messages),
	}
	if deviceID != "" {
		auditMeta["device_id"] = deviceID
	}
	_ = h.opts.AuditLogger.Log(ctx, extensions.AuditEvent{
		EventType:    "chat.message",
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Action:       "send",
		ResourceType: "chat",
		ResourceID:   string(endpoint),
		Outcome:      "success",
		Metadata:     auditMeta,
	})

	c.JSON(http.StatusOK, resp)
	success = true
}

// deviceGroundingPrompt wraps a device's rendered context as the system
// turn for a grounded conversation.
func deviceGroundingPrompt(deviceMD string) string {
	var b strings.Builder
	b.WriteString("You are a network operations assistant for an FTTH access network. ")
	b.WriteString("Ground your answers in the device data below. ")
	b.WriteString("If the data does not contain the answer, say so.\n\n")
	b.WriteString("Device data:\n")
	b.WriteString(deviceMD)
	b.WriteString("\n")
	return b.String()
}

// flattenChatPrompt renders a conversation as a single prompt for
// backends that only implement Generate. System content leads, the turns
// follow with role prefixes, and a trailing cue invites the reply.
func flattenChatPrompt(messages []datatypes.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		case "assistant":
			b.WriteString("Assistant: ")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		default:
			b.WriteString("User: ")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
	}
	b.WriteString("Assistant:")
	return b.String()
}
