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
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aleutian.netops.knowledge")

// StoreConfig tunes retrieval behavior of the WeaviateRuleStore.
type StoreConfig struct {
	// MinCertainty drops similarity results below this certainty.
	// Zero disables the threshold.
	MinCertainty float32

	// TextSearchProperties are the properties BM25 text search ranks on.
	TextSearchProperties []string
}

// DefaultStoreConfig returns the configuration used in production.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MinCertainty:         0,
		TextSearchProperties: []string{"title", "content", "keywords"},
	}
}

// WeaviateRuleStore implements decision.RuleStore against a Weaviate
// RuleDocument class.
//
// # Description
//
// WeaviateRuleStore serves the decision engine's retrieval ladder: vector
// similarity search first, BM25 text search second. It also carries the
// write side used by the pack loader and the document ingestor, so all
// knowledge-base traffic goes through one type.
//
// # Thread Safety
//
// WeaviateRuleStore is safe for concurrent use. The underlying Weaviate
// client handles connection pooling.
type WeaviateRuleStore struct {
	client *weaviate.Client
	config StoreConfig
}

// NewWeaviateRuleStore creates a rule store backed by the given client.
//
// # Inputs
//
//   - client: Weaviate client for database access.
//   - config: Store configuration (use DefaultStoreConfig() for defaults).
//
// # Outputs
//
//   - *WeaviateRuleStore: Ready to use store instance.
func NewWeaviateRuleStore(client *weaviate.Client, config StoreConfig) *WeaviateRuleStore {
	validated := validateStoreConfig(config)
	return &WeaviateRuleStore{
		client: client,
		config: validated,
	}
}

// validateStoreConfig validates and corrects store configuration values.
// Logs warnings for invalid values and applies sensible defaults.
func validateStoreConfig(config StoreConfig) StoreConfig {
	defaults := DefaultStoreConfig()

	if config.MinCertainty < 0 || config.MinCertainty > 1 {
		slog.Warn("Invalid MinCertainty config, using default",
			"provided", config.MinCertainty, "default", defaults.MinCertainty)
		config.MinCertainty = defaults.MinCertainty
	}

	if len(config.TextSearchProperties) == 0 {
		config.TextSearchProperties = defaults.TextSearchProperties
	}

	return config
}

// SimilaritySearch retrieves rule documents by vector proximity.
//
// # Description
//
// Runs a NearVector query against the RuleDocument class, filtered by
// domain and device type when those are non-empty. Results carry the
// certainty reported by Weaviate, which is always in [0, 1].
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - vector: Query embedding in the store's vector space.
//   - domain: Analysis domain filter, empty for unfiltered.
//   - deviceType: Device type filter, empty for unfiltered.
//   - limit: Maximum number of documents to return.
//
// # Outputs
//
//   - []decision.RuleDocument: Matching documents, most similar first.
//   - error: Non-nil if the query or response parsing fails.
func (s *WeaviateRuleStore) SimilaritySearch(ctx context.Context, vector []float32, domain, deviceType string, limit int) ([]decision.RuleDocument, error) {
	ctx, span := tracer.Start(ctx, "knowledge.SimilaritySearch")
	defer span.End()

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)
	if s.config.MinCertainty > 0 {
		nearVector = nearVector.WithCertainty(s.config.MinCertainty)
	}

	query := s.client.GraphQL().Get().
		WithClassName(RuleDocumentClass).
		WithFields(ruleDocumentFields(true)...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if where := buildScopeFilter(domain, deviceType); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		slog.Error("Weaviate similarity search failed", "domain", domain, "deviceType", deviceType, "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[RuleDocumentQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse similarity search results", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	docs := docsFromResults(parsed.Get.RuleDocument)
	slog.Debug("Similarity search complete", "domain", domain, "deviceType", deviceType, "count", len(docs))
	return docs, nil
}

// TextSearch retrieves rule documents by BM25 keyword relevance.
//
// # Description
//
// Ranks documents with BM25 over the configured text properties, filtered
// by domain and device type when those are non-empty. BM25 results carry
// no certainty; callers that need scope guarantees must check the returned
// domain and device_type fields themselves.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: Free text query.
//   - domain: Analysis domain filter, empty for unfiltered.
//   - deviceType: Device type filter, empty for unfiltered.
//   - limit: Maximum number of documents to return.
//
// # Outputs
//
//   - []decision.RuleDocument: Matching documents, most relevant first.
//   - error: Non-nil if the query or response parsing fails.
func (s *WeaviateRuleStore) TextSearch(ctx context.Context, query, domain, deviceType string, limit int) ([]decision.RuleDocument, error) {
	ctx, span := tracer.Start(ctx, "knowledge.TextSearch")
	defer span.End()

	bm25 := s.client.GraphQL().Bm25ArgBuilder().
		WithQuery(query).
		WithProperties(s.config.TextSearchProperties...)

	gql := s.client.GraphQL().Get().
		WithClassName(RuleDocumentClass).
		WithFields(ruleDocumentFields(false)...).
		WithBM25(bm25).
		WithLimit(limit)

	if where := buildScopeFilter(domain, deviceType); where != nil {
		gql = gql.WithWhere(where)
	}

	result, err := gql.Do(ctx)
	if err != nil {
		slog.Error("Weaviate text search failed", "domain", domain, "deviceType", deviceType, "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := ParseGraphQLResponse[RuleDocumentQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse text search results", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	docs := docsFromResults(parsed.Get.RuleDocument)
	slog.Debug("Text search complete", "domain", domain, "deviceType", deviceType, "count", len(docs))
	return docs, nil
}

// BatchUpsert writes rule documents with their vectors in one batch.
//
// # Description
//
// Object IDs are derived deterministically from each document's source and
// title, so re-ingesting the same document replaces the prior version
// instead of accumulating duplicates.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - docs: Documents to write.
//   - vectors: One vector per document; nil entries store without a vector.
//
// # Outputs
//
//   - int: Number of objects Weaviate reports as successfully written.
//   - error: Non-nil on batch failure or a docs/vectors length mismatch.
func (s *WeaviateRuleStore) BatchUpsert(ctx context.Context, docs []RuleDocumentProperties, vectors [][]float32) (int, error) {
	ctx, span := tracer.Start(ctx, "knowledge.BatchUpsert")
	defer span.End()

	if len(vectors) != 0 && len(vectors) != len(docs) {
		return 0, fmt.Errorf("mismatched vector count: %d docs, %d vectors", len(docs), len(vectors))
	}

	objects := make([]*models.Object, len(docs))
	for i := range docs {
		obj := &models.Object{
			Class:      RuleDocumentClass,
			ID:         DocumentID(docs[i].Source, docs[i].Title),
			Properties: docs[i].ToMap(),
		}
		if len(vectors) != 0 {
			obj.Vector = vectors[i]
		}
		objects[i] = obj
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		slog.Error("Failed to perform batch import to Weaviate", "error", err)
		return 0, fmt.Errorf("failed to save objects to Weaviate: %w", err)
	}

	written := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			written++
			continue
		}
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, errItem := range item.Result.Errors.Error {
				slog.Warn("Error in Weaviate batch item", "error", errItem.Message)
			}
		} else {
			slog.Warn("Failed Weaviate batch item, no error provided")
		}
	}
	return written, nil
}

// DeleteBySource removes every document ingested from the given source.
func (s *WeaviateRuleStore) DeleteBySource(ctx context.Context, source string) error {
	ctx, span := tracer.Start(ctx, "knowledge.DeleteBySource")
	defer span.End()

	where := filters.Where().
		WithPath([]string{"parent_source"}).
		WithOperator(filters.Equal).
		WithValueString(source)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(RuleDocumentClass).
		WithWhere(where).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		slog.Error("Failed to delete documents by source", "source", source, "error", err)
		return fmt.Errorf("failed to delete documents for %s: %w", source, err)
	}
	return nil
}

// ListSources returns the distinct parent sources present in the store.
func (s *WeaviateRuleStore) ListSources(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "knowledge.ListSources")
	defer span.End()

	agg, err := s.client.GraphQL().Aggregate().
		WithClassName(RuleDocumentClass).
		WithGroupBy("parent_source").
		WithFields(graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}}).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to aggregate documents from Weaviate", "error", err)
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	var sources []string
	if agg.Data["Aggregate"] != nil {
		aggMap, ok := agg.Data["Aggregate"].(map[string]interface{})
		if ok && aggMap[RuleDocumentClass] != nil {
			groups, ok := aggMap[RuleDocumentClass].([]interface{})
			if ok {
				for _, groupItem := range groups {
					groupMap, ok := groupItem.(map[string]interface{})
					if ok && groupMap["groupedBy"] != nil {
						groupedByMap, ok := groupMap["groupedBy"].(map[string]interface{})
						if ok && groupedByMap["value"] != nil {
							if sourceName, ok := groupedByMap["value"].(string); ok {
								sources = append(sources, sourceName)
							}
						}
					}
				}
			}
		}
	}
	return sources, nil
}

// ruleDocumentFields lists the GraphQL fields to retrieve. Certainty only
// exists on vector searches.
func ruleDocumentFields(withCertainty bool) []graphql.Field {
	additional := []graphql.Field{{Name: "id"}}
	if withCertainty {
		additional = append(additional, graphql.Field{Name: "certainty"})
	}
	return []graphql.Field{
		{Name: "title"},
		{Name: "content"},
		{Name: "domain"},
		{Name: "device_type"},
		{Name: "keywords"},
		{Name: "executable_rules"},
		{Name: "source"},
		{Name: "_additional", Fields: additional},
	}
}

// buildScopeFilter combines domain and device type into a Where filter.
// Returns nil when both are empty so callers can skip the clause entirely.
func buildScopeFilter(domain, deviceType string) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if domain != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"domain"}).
			WithOperator(filters.Equal).
			WithValueString(domain))
	}
	if deviceType != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"device_type"}).
			WithOperator(filters.Equal).
			WithValueString(deviceType))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

// docsFromResults converts query results to the decision engine's document type.
func docsFromResults(results []RuleDocumentResult) []decision.RuleDocument {
	docs := make([]decision.RuleDocument, 0, len(results))
	for _, r := range results {
		var certainty float64
		if r.Additional.Certainty != nil {
			certainty = float64(*r.Additional.Certainty)
		}
		docs = append(docs, decision.RuleDocument{
			ID:              r.Additional.ID,
			Title:           r.Title,
			Content:         r.Content,
			Domain:          r.Domain,
			DeviceType:      r.DeviceType,
			Keywords:        r.Keywords,
			ExecutableRules: r.ExecutableRules,
			Certainty:       certainty,
		})
	}
	return docs
}
