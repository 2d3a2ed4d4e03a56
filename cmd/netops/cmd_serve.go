// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/AleutianNetOps/pkg/logging"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/mcptools"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
)

// serveRuleStore mirrors the assistant service's store selection: Weaviate
// when WEAVIATE_SERVICE_URL points at a reachable instance, otherwise an
// in-memory store that only serves packs loaded from NETOPS_RULEPACK_DIR.
func serveRuleStore(ctx context.Context) (decision.RuleStore, knowledge.DocumentWriter) {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL != "" && strings.Contains(weaviateURL, "http") {
		parsedURL, err := url.Parse(weaviateURL)
		if err == nil && parsedURL.Scheme != "" && parsedURL.Host != "" {
			client, err := weaviate.NewClient(weaviate.Config{
				Host:   parsedURL.Host,
				Scheme: parsedURL.Scheme,
			})
			if err != nil {
				slog.Warn("Failed to create Weaviate client, using builtin rules", "error", err)
			} else if err := knowledge.EnsureSchema(ctx, client); err != nil {
				slog.Warn("Weaviate unreachable, using builtin rules", "error", err)
			} else {
				store := knowledge.NewWeaviateRuleStore(client, knowledge.DefaultStoreConfig())
				return store, store
			}
		}
	}
	mem := knowledge.NewMemoryRuleStore()
	return mem, mem
}

// runServeCommand exposes the decision engine as MCP tools on stdio, for
// editors and agent runtimes that speak the protocol. Stdout carries the
// MCP transport, so all logging goes to stderr.
func runServeCommand(cmd *cobra.Command, args []string) {
	appLog := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("NETOPS_LOG_LEVEL")),
		LogDir:  os.Getenv("NETOPS_LOG_DIR"),
		Service: "mcp",
		JSON:    true,
	})
	defer appLog.Close()
	logger := appLog.Slog()
	slog.SetDefault(logger)

	ctx := context.Background()
	ruleStore, docWriter := serveRuleStore(ctx)

	var embedder decision.EmbeddingProvider
	if embedURL := strings.Trim(os.Getenv("EMBEDDING_SERVICE_URL"), "\"' "); embedURL != "" {
		client := knowledge.NewEmbeddingClient(embedURL)
		if err := client.Health(ctx); err != nil {
			slog.Warn("Embeddings service not ready, retrieval will fall back to text search",
				"error", err)
		}
		embedder = client
	}

	engine := decision.NewEngine(decision.Config{
		Store:    ruleStore,
		Embedder: embedder,
		Logger:   logger,
	})

	if packDir := os.Getenv("NETOPS_RULEPACK_DIR"); packDir != "" {
		loader := knowledge.NewPackLoader(packDir, docWriter, embedder, engine.ClearRuleCache, nil)
		if loaded, err := loader.LoadAll(ctx); err != nil {
			slog.Warn("Failed to load rule packs", "dir", packDir, "error", err)
		} else {
			slog.Info("Loaded rule packs", "dir", packDir, "count", loaded)
		}
	}

	var inventoryClient *inventory.Client
	if apiURL := strings.Trim(os.Getenv("INVENTORY_API_URL"), "\"' "); apiURL != "" {
		inventoryClient = inventory.NewClient(inventory.ClientConfig{
			BaseURL:  apiURL,
			APIToken: os.Getenv("INVENTORY_API_TOKEN"),
		}, nil)
	} else {
		slog.Info("INVENTORY_API_URL not set, device tools will report errors")
	}

	srv := mcptools.NewServer(engine, inventoryClient)
	slog.Info("Serving MCP tools on stdio")
	if err := srv.Serve(); err != nil {
		log.Fatalf("MCP server terminated: %v", err)
	}
}
