// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import "context"

// FilterResult describes the outcome of filtering one query or answer.
type FilterResult struct {
	// Original is the input text before filtering.
	Original string

	// Filtered is the text after filtering transformations.
	// If WasModified is false, this equals Original.
	Filtered string

	// WasModified indicates if any transformations were applied.
	WasModified bool

	// WasBlocked indicates if the text was completely rejected.
	// If true, Filtered should not be used.
	WasBlocked bool

	// BlockReason explains why the text was blocked (if WasBlocked).
	BlockReason string

	// Detections lists what the filter found.
	// Useful for audit logging and debugging.
	Detections []Detection
}

// Detection describes a single item found by the filter.
type Detection struct {
	// Type categorizes what was detected.
	// Common types: "subscriber_id", "email", "phone", "api_key", "secret"
	Type string

	// Location describes where in the text the item was found.
	// Format is implementation-specific (e.g., "characters 10-20").
	Location string

	// Action describes what was done with the detected item.
	// Values: "redacted", "masked", "replaced", "blocked", "flagged"
	Action string

	// Replacement is what the content was replaced with (if Action is
	// "replaced").
	Replacement string
}

// QueryFilter transforms operator queries before and after LLM processing.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Filter Pipeline
//
// Text flows through filters at two points:
//
//  1. FilterInput: Before a query is sent to the LLM
//     - Redact subscriber identifiers from operator queries
//     - Block queries carrying credentials or secrets
//
//  2. FilterOutput: Before an answer is returned to the operator
//     - Remove leaked secrets from responses
//     - Add compliance disclaimers
//
// # Open Source Behavior
//
// The default NopQueryFilter passes all text through unchanged. This is
// appropriate for NOC-local deployments where the LLM itself runs
// on-premises.
//
// # Blocking vs Transforming
//
// Filters can either:
//   - Transform: Modify content and allow it through (e.g., mask a phone number)
//   - Block: Reject the entire query (e.g., credentials pasted into chat)
//
// To block, return a FilterResult with WasBlocked=true and BlockReason
// set. The caller then refuses the request without calling the LLM.
type QueryFilter interface {
	// FilterInput processes an operator query before LLM inference.
	//
	// Returns a non-nil error only for filter failures, not for blocks.
	FilterInput(ctx context.Context, query string) (*FilterResult, error)

	// FilterOutput processes an LLM answer before it reaches the operator.
	//
	// Returns a non-nil error only for filter failures, not for blocks.
	FilterOutput(ctx context.Context, answer string) (*FilterResult, error)
}

// NopQueryFilter is the default filter for open source.
//
// It passes all text through unchanged. Thread-safe: no mutable state.
type NopQueryFilter struct{}

// FilterInput returns the query unchanged.
func (f *NopQueryFilter) FilterInput(_ context.Context, query string) (*FilterResult, error) {
	return &FilterResult{Original: query, Filtered: query}, nil
}

// FilterOutput returns the answer unchanged.
func (f *NopQueryFilter) FilterOutput(_ context.Context, answer string) (*FilterResult, error) {
	return &FilterResult{Original: answer, Filtered: answer}, nil
}

// Compile-time interface compliance check.
var _ QueryFilter = (*NopQueryFilter)(nil)
