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
	"time"

	"github.com/gin-gonic/gin"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianNetOps/pkg/extensions"
	"github.com/AleutianAI/AleutianNetOps/pkg/logging"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/history"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/routes"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
	"github.com/AleutianAI/AleutianNetOps/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("assistant-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// setupKnowledgeStore connects the Weaviate rule store, or falls back to
// an in-memory store when WEAVIATE_SERVICE_URL is unset or unreachable.
// Both returns are backed by the same store so ingestion and retrieval
// stay consistent.
func setupKnowledgeStore(ctx context.Context) (decision.RuleStore, knowledge.DocumentWriter) {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")

	if weaviateURL != "" && strings.Contains(weaviateURL, "http") {
		parsedURL, err := url.Parse(weaviateURL)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in lightweight mode.",
				"url", weaviateURL, "error", err)
		} else {
			client, err := weaviate.NewClient(weaviate.Config{
				Host:   parsedURL.Host,
				Scheme: parsedURL.Scheme,
			})
			if err != nil {
				slog.Error("Failed to create Weaviate client", "error", err)
			} else if err := knowledge.EnsureSchema(ctx, client); err != nil {
				slog.Error("Failed to ensure Weaviate schema. Running in lightweight mode.",
					"error", err)
			} else {
				store := knowledge.NewWeaviateRuleStore(client, knowledge.DefaultStoreConfig())
				return store, store
			}
		}
	} else {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in lightweight mode (builtin rules only).")
	}

	mem := knowledge.NewMemoryRuleStore()
	return mem, mem
}

// setupLLMClient selects the answer-phrasing backend. An unset backend is
// a supported mode: the assistant answers with rendered tool output. A
// named backend that fails to initialize is fatal, silent misconfiguration
// would be worse than a crash at startup.
func setupLLMClient() llm.LLMClient {
	backendType := os.Getenv("LLM_BACKEND_TYPE")

	var client llm.LLMClient
	var err error
	switch backendType {
	case "":
		slog.Info("LLM_BACKEND_TYPE not set, answers will use rendered tool output")
		return nil
	case "local":
		client, err = llm.NewLocalLlamaCppClient()
		slog.Info("Using Local Llama.cpp LLM backend")
	case "openai":
		client, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "ollama":
		client, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		log.Fatalf("Unknown LLM_BACKEND_TYPE %q (want local, openai, or ollama)", backendType)
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	return client
}

func main() {
	port := os.Getenv("NETOPS_PORT")
	if port == "" {
		port = "12310"
	}

	appLog := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("NETOPS_LOG_LEVEL")),
		LogDir:  os.Getenv("NETOPS_LOG_DIR"),
		Service: "assistant",
		JSON:    true,
	})
	defer appLog.Close()
	logger := appLog.Slog()
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	ctx := context.Background()
	ruleStore, docWriter := setupKnowledgeStore(ctx)

	// --- Embeddings service ---
	var embedder decision.EmbeddingProvider
	if embedURL := strings.Trim(os.Getenv("EMBEDDING_SERVICE_URL"), "\"' "); embedURL != "" {
		client := knowledge.NewEmbeddingClient(embedURL)
		if err := client.Health(ctx); err != nil {
			slog.Warn("Embeddings service not ready, retrieval will fall back to text search",
				"error", err)
		}
		embedder = client
	} else {
		slog.Info("EMBEDDING_SERVICE_URL not set, similarity search disabled")
	}

	engine := decision.NewEngine(decision.Config{
		Store:    ruleStore,
		Embedder: embedder,
		Logger:   logger,
	})

	// --- Rule packs ---
	if packDir := os.Getenv("NETOPS_RULEPACK_DIR"); packDir != "" {
		loader := knowledge.NewPackLoader(packDir, docWriter, embedder, engine.ClearRuleCache, nil)
		if loaded, err := loader.LoadAll(ctx); err != nil {
			slog.Warn("Failed to load rule packs", "dir", packDir, "error", err)
		} else {
			slog.Info("Loaded rule packs", "dir", packDir, "count", loaded)
		}
		if err := loader.Watch(ctx); err != nil {
			slog.Warn("Rule pack watcher unavailable, edits need a restart", "error", err)
		} else {
			defer loader.Stop()
		}
	}

	llmClient := setupLLMClient()

	// --- Live inventory ---
	var inventoryClient *inventory.Client
	if apiURL := strings.Trim(os.Getenv("INVENTORY_API_URL"), "\"' "); apiURL != "" {
		inventoryClient = inventory.NewClient(inventory.ClientConfig{
			BaseURL:  apiURL,
			APIToken: os.Getenv("INVENTORY_API_TOKEN"),
		}, nil)
	} else {
		slog.Info("INVENTORY_API_URL not set, device operations disabled")
	}

	// --- Utilization historian ---
	var historian *inventory.Historian
	if os.Getenv("INFLUXDB_TOKEN") != "" {
		cfg := inventory.HistorianConfigFromEnv()
		influxClient := influxdb2.NewClient(cfg.URL, cfg.Token)
		defer influxClient.Close()
		if err := inventory.WaitForInflux(ctx, influxClient, 5); err != nil {
			slog.Warn("InfluxDB unavailable, historian disabled", "error", err)
		} else {
			historian = inventory.NewHistorian(influxClient, cfg)
			slog.Info("Historian enabled", "bucket", cfg.Bucket)
		}
	}

	// --- Decision history ---
	var histStore *history.Store
	if histPath := os.Getenv("NETOPS_HISTORY_PATH"); histPath != "" {
		cfg := history.DefaultConfig()
		cfg.Path = histPath
		cfg.Logger = logger
		histStore, err = history.Open(cfg)
		if err != nil {
			slog.Warn("Failed to open decision history, continuing without", "error", err)
			histStore = nil
		} else {
			defer histStore.Close()
		}
	}

	// --- Extension points ---
	opts := extensions.DefaultOptions()
	if auditPath := os.Getenv("NETOPS_AUDIT_LOG"); auditPath != "" {
		auditLogger := extensions.NewFileAuditLogger(auditPath)
		defer auditLogger.Close()
		opts = opts.WithAudit(auditLogger)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("assistant-service"))

	routes.SetupRoutes(router, routes.Dependencies{
		Engine:    engine,
		Inventory: inventoryClient,
		Historian: historian,
		History:   histStore,
		LLM:       llmClient,
		Ingestor:  knowledge.NewIngestor(docWriter, embedder),
		Documents: docWriter,
		Embedder:  embedder,
	}, opts)

	log.Println("Starting the assistant server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
