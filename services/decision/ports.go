// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package decision

import "context"

// RuleDocument is one knowledge-base entry as returned by a RuleStore.
// ExecutableRules holds the YAML rule set payload; documents without it are
// narrative knowledge and still count as routing signals.
type RuleDocument struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Domain          string   `json:"domain"`
	DeviceType      string   `json:"device_type"`
	Keywords        []string `json:"keywords,omitempty"`
	ExecutableRules string   `json:"executable_rules,omitempty"`

	// Certainty is the store's similarity confidence in [0, 1], zero for
	// text search results.
	Certainty float64 `json:"certainty,omitempty"`
}

// RuleStore is the knowledge-base port the engine retrieves rule documents
// through. Implementations must be safe for concurrent use; the engine
// fans probe searches out in parallel.
//
// Both search methods treat domain and deviceType as filters; empty strings
// mean unfiltered. Results come back most relevant first.
type RuleStore interface {
	// SimilaritySearch retrieves documents by vector proximity.
	SimilaritySearch(ctx context.Context, vector []float32, domain, deviceType string, limit int) ([]RuleDocument, error)

	// TextSearch retrieves documents by keyword relevance.
	TextSearch(ctx context.Context, query, domain, deviceType string, limit int) ([]RuleDocument, error)
}

// EmbeddingProvider turns text into the vector space of the rule store.
// When no provider is configured the retriever skips similarity search and
// goes straight to text search.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
