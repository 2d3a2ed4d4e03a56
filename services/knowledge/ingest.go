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
	"crypto/sha256"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
)

var (
	CHUNK_SIZE        = 1000
	CHUNK_OVERLAP     = int(float64(CHUNK_SIZE) * 0.10) // Chunk_overlap is 10% of the CHUNK_SIZE
	defaultSeparators = []string{"\n\n", "\n", " ", ""}

	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

// DocumentWriter is the write side of a knowledge store. Both
// WeaviateRuleStore and MemoryRuleStore implement it, so the pack loader
// and the ingestor work against either backend.
type DocumentWriter interface {
	BatchUpsert(ctx context.Context, docs []RuleDocumentProperties, vectors [][]float32) (int, error)
	DeleteBySource(ctx context.Context, source string) error
}

// DocumentID derives a deterministic Weaviate object ID from a document's
// source and title. Re-ingesting the same source replaces the old object.
func DocumentID(source, title string) strfmt.UUID {
	hash := sha256.Sum256([]byte(source + "\x00" + title))
	docUUID, _ := uuid.FromBytes(hash[:16])
	return strfmt.UUID(docUUID.String())
}

// IngestRequest describes one operational guidance document to ingest.
type IngestRequest struct {
	Content    string   `json:"content"`
	Source     string   `json:"source"`
	Title      string   `json:"title"`
	Domain     string   `json:"domain"`
	DeviceType string   `json:"device_type"`
	Keywords   []string `json:"keywords"`
}

// Ingestor chunks guidance documents and writes them to a knowledge store.
//
// # Description
//
// Ingestor handles narrative knowledge: runbooks, tool descriptions,
// troubleshooting guides. Content is split into overlapping chunks sized
// for embedding, vectorized when an embedder is available, and written in
// one batch. Executable rule packs do not go through the ingestor; the
// PackLoader stores those whole so the YAML payload survives intact.
//
// # Thread Safety
//
// Ingestor is safe for concurrent use.
type Ingestor struct {
	writer   DocumentWriter
	embedder decision.EmbeddingProvider
}

// NewIngestor creates an ingestor writing through the given store.
// A nil embedder stores chunks without vectors; they remain reachable
// through text search.
func NewIngestor(writer DocumentWriter, embedder decision.EmbeddingProvider) *Ingestor {
	return &Ingestor{writer: writer, embedder: embedder}
}

// Ingest splits, embeds, and stores one document.
//
// # Description
//
// Prior chunks from the same source are deleted first, so shrinking
// documents do not leave stale tail chunks behind. Each chunk becomes one
// RuleDocument object with a deterministic ID.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - req: The document to ingest. Source must be non-empty.
//
// # Outputs
//
//   - int: Number of chunks written.
//   - error: Non-nil on split, embedding, or store failure.
func (ing *Ingestor) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Ingest")
	defer span.End()

	if req.Source == "" {
		return 0, fmt.Errorf("ingest request missing source")
	}
	slog.Info("Ingestion request received", "source", req.Source)

	splitter := getSplitterForFile(req.Source)
	chunks, err := splitter.SplitText(req.Content)
	if err != nil {
		slog.Error("Failed to split text", "source", req.Source, "error", err)
		return 0, fmt.Errorf("failed to split content: %w", err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", req.Source)
		return 0, nil
	}
	slog.Info("Split document into chunks", "source", req.Source, "chunk_count", len(chunks))

	var vectors [][]float32
	if ing.embedder != nil {
		vectors, err = embedChunks(ctx, ing.embedder, chunks)
		if err != nil {
			slog.Error("Failed to embed chunks", "source", req.Source, "error", err)
			return 0, err
		}
	}

	title := req.Title
	if title == "" {
		title = filepath.Base(req.Source)
	}

	now := time.Now().UnixMilli()
	docs := make([]RuleDocumentProperties, len(chunks))
	for i, chunk := range chunks {
		docs[i] = RuleDocumentProperties{
			Title:        title,
			Content:      chunk,
			Domain:       req.Domain,
			DeviceType:   req.DeviceType,
			Keywords:     req.Keywords,
			Source:       fmt.Sprintf("%s_part_%d", req.Source, i+1),
			ParentSource: req.Source,
			IngestedAt:   now,
		}
	}

	if err := ing.writer.DeleteBySource(ctx, req.Source); err != nil {
		slog.Warn("Failed to clear prior chunks before re-ingest", "source", req.Source, "error", err)
	}

	written, err := ing.writer.BatchUpsert(ctx, docs, vectors)
	if err != nil {
		return 0, err
	}

	slog.Info("Successfully processed document", "source", req.Source, "chunks_processed", written)
	return written, nil
}

// embedChunks vectorizes chunks through one batch call when the provider
// supports it, falling back to per-chunk embedding.
func embedChunks(ctx context.Context, embedder decision.EmbeddingProvider, chunks []string) ([][]float32, error) {
	if be, ok := embedder.(BatchEmbedder); ok {
		vectors, err := be.BatchEmbed(ctx, chunks)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		return vectors, nil
	}

	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		vec, err := embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func getSplitterForFile(filename string) textsplitter.TextSplitter {
	ext := filepath.Ext(filename)
	switch ext {
	case ".md":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(CHUNK_SIZE),
			textsplitter.WithChunkOverlap(CHUNK_OVERLAP),
			textsplitter.WithSeparators(markdownSeparators),
		)

	default:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(CHUNK_SIZE),
			textsplitter.WithChunkOverlap(CHUNK_OVERLAP),
			textsplitter.WithSeparators(defaultSeparators),
		)
	}
}
