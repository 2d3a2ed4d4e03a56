// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the device analysis
// endpoints: health analysis, query routing, and the combined ask flow.
package datatypes

import (
	"time"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxDevicesPerAnalysis is the maximum number of devices in a single
	// health analysis request. Bulk fetches fan out to the inventory API,
	// so this bounds the per-request load.
	MaxDevicesPerAnalysis = 50

	// MaxQueryBytes is the maximum size of a single operator query.
	MaxQueryBytes = 8 * 1024 // 8KB
)

// validateMaxQueryBytes validates that a query field does not exceed
// MaxQueryBytes. Registered as "maxquerybytes" alongside the chat
// validators.
func validateMaxQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Health Analysis Types
// =============================================================================

// HealthAnalysisRequest asks for a health classification of one or more
// devices by ID.
//
// # Validation
//
//   - RequestID: required, must be valid UUID v4
//   - Timestamp: required, must be > 0
//   - DeviceIDs: required, 1-50 non-empty entries. IDs are sanitized again
//     at the inventory boundary before any query is built from them.
//   - Domain: optional knowledge domain, defaults to the network health
//     domain when omitted.
type HealthAnalysisRequest struct {
	RequestID string   `json:"request_id" validate:"required,uuid4"`
	Timestamp int64    `json:"timestamp" validate:"required,gt=0"`
	DeviceIDs []string `json:"device_ids" validate:"required,min=1,max=50,dive,required"`
	Domain    string   `json:"domain,omitempty" validate:"omitempty,max=64"`
}

// Validate validates the HealthAnalysisRequest fields after JSON binding.
func (r *HealthAnalysisRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID, Timestamp, and Domain if the client
// omitted them.
func (r *HealthAnalysisRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.Domain == "" {
		r.Domain = decision.DefaultHealthDomain
	}
}

// DeviceHealthReport pairs one device with its classification outcome.
type DeviceHealthReport struct {
	DeviceID string                   `json:"device_id"`
	Result   *decision.DecisionResult `json:"result"`
}

// HealthAnalysisResponse carries per-device reports plus a rendered
// markdown summary. Failures maps device IDs that could not be analyzed to
// a short error description, matching the partial-failure shape of the
// inventory bulk fetch.
type HealthAnalysisResponse struct {
	ResponseID       string               `json:"response_id"`
	RequestID        string               `json:"request_id"`
	Timestamp        int64                `json:"timestamp"`
	Reports          []DeviceHealthReport `json:"reports"`
	Failures         map[string]string    `json:"failures,omitempty"`
	Summary          string               `json:"summary"`
	ProcessingTimeMs int64                `json:"processing_time_ms,omitempty"`
}

// NewHealthAnalysisResponse creates a HealthAnalysisResponse with
// auto-generated ResponseID and Timestamp.
func NewHealthAnalysisResponse(requestID string) *HealthAnalysisResponse {
	return &HealthAnalysisResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// =============================================================================
// Query Routing Types
// =============================================================================

// RouteRequest asks which tool should handle an operator query.
type RouteRequest struct {
	RequestID string `json:"request_id" validate:"required,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"required,gt=0"`
	Query     string `json:"query" validate:"required,maxquerybytes"`
}

// Validate validates the RouteRequest fields after JSON binding.
func (r *RouteRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp if the client omitted
// them.
func (r *RouteRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// RouteResponse carries the routing decision plus a rendered markdown
// explanation of the signals behind it.
type RouteResponse struct {
	ResponseID       string                    `json:"response_id"`
	RequestID        string                    `json:"request_id"`
	Timestamp        int64                     `json:"timestamp"`
	Decision         *decision.RoutingDecision `json:"decision"`
	Explanation      string                    `json:"explanation"`
	ProcessingTimeMs int64                     `json:"processing_time_ms,omitempty"`
}

// NewRouteResponse creates a RouteResponse with auto-generated ResponseID
// and Timestamp.
func NewRouteResponse(requestID string, dec *decision.RoutingDecision) *RouteResponse {
	return &RouteResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		Decision:   dec,
	}
}

// =============================================================================
// Ask Types
// =============================================================================

// AskRequest is the combined flow: route the query, run the selected tool,
// classify results, and phrase an answer. SessionID groups related asks for
// audit purposes and is optional.
type AskRequest struct {
	RequestID string `json:"request_id" validate:"required,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"required,gt=0"`
	Query     string `json:"query" validate:"required,maxquerybytes"`
	SessionID string `json:"session_id,omitempty"`
}

// Validate validates the AskRequest fields after JSON binding.
func (r *AskRequest) Validate() error {
	return chatValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp if the client omitted
// them.
func (r *AskRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// AskResponse is the answer to an ask flow. Answer is markdown. Routing
// explains which tool produced the underlying data. Sources lists the
// knowledge documents or live systems the answer drew from.
type AskResponse struct {
	ResponseID       string                    `json:"response_id"`
	RequestID        string                    `json:"request_id"`
	Timestamp        int64                     `json:"timestamp"`
	Answer           string                    `json:"answer"`
	Routing          *decision.RoutingDecision `json:"routing,omitempty"`
	Sources          []string                  `json:"sources,omitempty"`
	ProcessingTimeMs int64                     `json:"processing_time_ms,omitempty"`
}

// NewAskResponse creates an AskResponse with auto-generated ResponseID and
// Timestamp.
func NewAskResponse(requestID, answer string) *AskResponse {
	return &AskResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		Answer:     answer,
	}
}
