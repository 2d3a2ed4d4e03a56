// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the assistant service.
//
// This file contains request and response types for the chat endpoints
// (HTTP and WebSocket). For device analysis types, see analysis.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants for Security Compliance
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message content.
	// Unbounded message input mitigation.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	// Unbounded message history mitigation.
	MaxMessagesPerRequest = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Register custom validators for message and query size limits
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = chatValidate.RegisterValidation("maxquerybytes", validateMaxQueryBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes. Checks byte length (not rune count) to prevent
// memory exhaustion with large payloads.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxMessageContentBytes
}

// generateUUID returns a new UUID v4 string for request and response IDs.
func generateUUID() string {
	return uuid.New().String()
}

// =============================================================================
// Message Types
// =============================================================================

// Message is a single turn in a chat conversation.
//
// # Fields
//
//   - MessageID: Optional. Unique identifier for this message (UUID v4).
//     Used for deduplication and audit correlation when provided.
//   - Role: Required. One of "user", "assistant", "system".
//   - Content: Required. The message text, limited to 32KB.
type Message struct {
	MessageID string `json:"message_id,omitempty" validate:"omitempty,uuid4"`
	Role      string `json:"role" validate:"required,oneof=user assistant system"`
	Content   string `json:"content" validate:"required,maxbytes"`
}

// =============================================================================
// Chat Request Types
// =============================================================================

// ChatRequest represents a network-operations chat request body.
//
// # Description
//
// ChatRequest carries the conversation history for the POST /v1/chat and
// WebSocket /v1/chat/ws endpoints. Every request includes a unique ID and
// timestamp for audit trails. When DeviceID is set, the assistant grounds
// its answer on that device's live health analysis.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: required, must be valid UUID v4
//   - Timestamp: required, must be > 0
//   - Messages: required, 1-100 elements, each element validated
//   - Messages[].Content: max 32768 bytes (32KB) per message
//   - DeviceID: optional, sanitized again at the inventory boundary
//
// # Examples
//
//	req := ChatRequest{
//	    RequestID: "550e8400-e29b-41d4-a716-446655440000",
//	    Timestamp: time.Now().UnixMilli(),
//	    Messages: []Message{
//	        {Role: "user", Content: "Why is OLT17PROP01 degraded?"},
//	    },
//	    DeviceID: "OLT17PROP01",
//	}
type ChatRequest struct {
	RequestID string    `json:"request_id" validate:"required,uuid4"`
	Timestamp int64     `json:"timestamp" validate:"required,gt=0"`
	Messages  []Message `json:"messages" validate:"required,min=1,max=100,dive"`
	DeviceID  string    `json:"device_id,omitempty"`
	Stream    bool      `json:"stream,omitempty"`
}

// Validate validates the ChatRequest fields after JSON binding.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp if the client omitted
// them, so every request has proper identifiers for tracing and auditing.
func (r *ChatRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// =============================================================================
// Chat Response Types
// =============================================================================

// ChatResponse represents the response from a chat request.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4), generated
//     server-side.
//   - RequestID: Echo of the request ID for correlation.
//   - Timestamp: Unix timestamp in milliseconds (UTC) when the response was
//     generated.
//   - Answer: The assistant's generated response text.
//   - Usage: Optional. Token usage statistics.
//   - ProcessingTimeMs: Time taken to process the request in milliseconds.
type ChatResponse struct {
	ResponseID       string      `json:"response_id"`
	RequestID        string      `json:"request_id"`
	Timestamp        int64       `json:"timestamp"`
	Answer           string      `json:"answer"`
	Usage            *TokenUsage `json:"usage,omitempty"`
	ProcessingTimeMs int64       `json:"processing_time_ms,omitempty"`
}

// NewChatResponse creates a ChatResponse with auto-generated ResponseID and
// Timestamp, echoing the request ID for correlation.
func NewChatResponse(requestID, answer string) *ChatResponse {
	return &ChatResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		Answer:     answer,
	}
}

// =============================================================================
// Token Usage Types
// =============================================================================

// TokenUsage contains token consumption statistics for billing and
// monitoring.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
