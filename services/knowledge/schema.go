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
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// RuleDocumentClass is the Weaviate class holding analysis rules and
// operational guidance. Documents with executable_rules drive the decision
// engine; documents without it are narrative knowledge that still feeds
// query routing.
const RuleDocumentClass = "RuleDocument"

func GetRuleDocumentSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       RuleDocumentClass,
		Description: "Network analysis knowledge: executable rule packs and operational guidance.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Human readable document title.",
				Tokenization: "word",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Narrative body of the document.",
				Tokenization: "word",
			},
			{
				Name:            "domain",
				DataType:        []string{"text"},
				Description:     "Analysis domain this document belongs to (e.g. 'network_health').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "device_type",
				DataType:        []string{"text"},
				Description:     "Normalized device type the document applies to (e.g. 'ftth_olt').",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "keywords",
				DataType:     []string{"text[]"},
				Description:  "Search keywords for text retrieval.",
				Tokenization: "word",
			},
			{
				Name:        "executable_rules",
				DataType:    []string{"text"},
				Description: "YAML rule set payload. Empty for narrative documents.",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Origin of the document (file path, pack name, or API).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "parent_source",
				DataType:        []string{"text"},
				Description:     "The original parent document when this entry is one chunk of it.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the document was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the knowledge classes that do not exist yet.
//
// # Description
//
// Checks each class and creates it when the getter returns an error,
// which is how the client signals a missing class. Existing classes are
// left untouched; property drift is not reconciled here.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - client: Connected Weaviate client.
//
// # Outputs
//
//   - error: Non-nil if a missing class could not be created.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetRuleDocumentSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err != nil {
			slog.Info("Schema not found, creating it...", "class", class.Class)
			if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
				return err
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
	return nil
}
