// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// RuleDocumentQueryResponse represents the response from querying the
// RuleDocument class.
type RuleDocumentQueryResponse struct {
	Get struct {
		RuleDocument []RuleDocumentResult `json:"RuleDocument"`
	} `json:"Get"`
}

// RuleDocumentResult represents a single rule document from a query.
type RuleDocumentResult struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Domain          string   `json:"domain"`
	DeviceType      string   `json:"device_type"`
	Keywords        []string `json:"keywords"`
	ExecutableRules string   `json:"executable_rules"`
	Source          string   `json:"source"`
	Additional      struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// RuleDocumentProperties represents the properties for creating a
// RuleDocument object.
type RuleDocumentProperties struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Domain          string   `json:"domain"`
	DeviceType      string   `json:"device_type"`
	Keywords        []string `json:"keywords"`
	ExecutableRules string   `json:"executable_rules"`
	Source          string   `json:"source"`
	ParentSource    string   `json:"parent_source"`
	IngestedAt      int64    `json:"ingested_at"`
}

// ToMap converts RuleDocumentProperties to map[string]interface{} for Weaviate.
func (p *RuleDocumentProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"title":            p.Title,
		"content":          p.Content,
		"domain":           p.Domain,
		"device_type":      p.DeviceType,
		"keywords":         p.Keywords,
		"executable_rules": p.ExecutableRules,
		"source":           p.Source,
		"parent_source":    p.ParentSource,
		"ingested_at":      p.IngestedAt,
	}
}
