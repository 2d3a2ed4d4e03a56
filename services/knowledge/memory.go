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
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

// MemoryRuleStore is an in-process decision.RuleStore.
//
// # Description
//
// MemoryRuleStore backs lightweight mode, where the assistant runs without
// a reachable Weaviate instance. Rule packs loaded from disk land here and
// retrieval still works: similarity search uses cosine distance over
// whatever vectors were stored, text search scores token overlap between
// the query and each document's title, keywords, and content.
//
// Ranking quality is far below Weaviate's. That is acceptable for the
// fallback role; the decision engine only needs the right rule pack to
// surface, not a finely ordered list.
//
// # Thread Safety
//
// MemoryRuleStore is safe for concurrent use.
type MemoryRuleStore struct {
	mu      sync.RWMutex
	docs    []decision.RuleDocument
	vectors map[string][]float32
	sources map[string]map[string]bool
}

// NewMemoryRuleStore creates an empty in-memory store.
func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		vectors: make(map[string][]float32),
		sources: make(map[string]map[string]bool),
	}
}

// Put inserts or replaces a document, keyed by its ID. A nil vector keeps
// the document reachable through text search only. Source records where
// the document came from, so DeleteBySource can drop it later; empty
// source means untracked.
func (m *MemoryRuleStore) Put(source string, doc decision.RuleDocument, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if source != "" {
		if m.sources[source] == nil {
			m.sources[source] = make(map[string]bool)
		}
		m.sources[source][doc.ID] = true
	}

	for i := range m.docs {
		if m.docs[i].ID == doc.ID {
			m.docs[i] = doc
			if vector != nil {
				m.vectors[doc.ID] = vector
			}
			return
		}
	}
	m.docs = append(m.docs, doc)
	if vector != nil {
		m.vectors[doc.ID] = vector
	}
}

// BatchUpsert writes rule documents the same way WeaviateRuleStore does,
// deriving IDs from source and title so re-ingestion replaces rather than
// duplicates.
func (m *MemoryRuleStore) BatchUpsert(_ context.Context, docs []RuleDocumentProperties, vectors [][]float32) (int, error) {
	if len(vectors) != 0 && len(vectors) != len(docs) {
		return 0, fmt.Errorf("mismatched vector count: %d docs, %d vectors", len(docs), len(vectors))
	}
	for i := range docs {
		var vec []float32
		if len(vectors) != 0 {
			vec = vectors[i]
		}
		m.Put(docs[i].ParentSource, decision.RuleDocument{
			ID:              string(DocumentID(docs[i].Source, docs[i].Title)),
			Title:           docs[i].Title,
			Content:         docs[i].Content,
			Domain:          docs[i].Domain,
			DeviceType:      docs[i].DeviceType,
			Keywords:        docs[i].Keywords,
			ExecutableRules: docs[i].ExecutableRules,
		}, vec)
	}
	return len(docs), nil
}

// DeleteBySource removes every document previously Put under source.
// Matches the write-side contract of WeaviateRuleStore so the pack loader
// can target either store.
func (m *MemoryRuleStore) DeleteBySource(_ context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.sources[source]
	if len(ids) == 0 {
		return nil
	}
	kept := m.docs[:0]
	for _, doc := range m.docs {
		if ids[doc.ID] {
			delete(m.vectors, doc.ID)
			continue
		}
		kept = append(kept, doc)
	}
	m.docs = kept
	delete(m.sources, source)
	return nil
}

// Len returns the number of stored documents.
func (m *MemoryRuleStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// SimilaritySearch ranks stored documents by cosine similarity to vector.
// Documents without vectors are skipped.
func (m *MemoryRuleStore) SimilaritySearch(_ context.Context, vector []float32, domain, deviceType string, limit int) ([]decision.RuleDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		doc   decision.RuleDocument
		score float64
	}
	var ranked []scored
	for _, doc := range m.docs {
		if !scopeMatches(doc, domain, deviceType) {
			continue
		}
		vec, ok := m.vectors[doc.ID]
		if !ok {
			continue
		}
		sim := cosineSimilarity(vector, vec)
		if sim <= 0 {
			continue
		}
		doc.Certainty = (sim + 1) / 2
		ranked = append(ranked, scored{doc: doc, score: sim})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return takeDocs(ranked, limit, func(s scored) decision.RuleDocument { return s.doc }), nil
}

// TextSearch ranks stored documents by token overlap with the query.
func (m *MemoryRuleStore) TextSearch(_ context.Context, query, domain, deviceType string, limit int) ([]decision.RuleDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	type scored struct {
		doc   decision.RuleDocument
		score int
	}
	var ranked []scored
	for _, doc := range m.docs {
		if !scopeMatches(doc, domain, deviceType) {
			continue
		}
		score := overlapScore(queryTokens, doc)
		if score == 0 {
			continue
		}
		ranked = append(ranked, scored{doc: doc, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	return takeDocs(ranked, limit, func(s scored) decision.RuleDocument { return s.doc }), nil
}

func scopeMatches(doc decision.RuleDocument, domain, deviceType string) bool {
	if domain != "" && !strings.EqualFold(doc.Domain, domain) {
		return false
	}
	if deviceType != "" && !strings.EqualFold(doc.DeviceType, deviceType) {
		return false
	}
	return true
}

// overlapScore counts query tokens present in the document. Title and
// keyword hits weigh double; content hits weigh single.
func overlapScore(queryTokens []string, doc decision.RuleDocument) int {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(doc.Content)
	keywords := strings.ToLower(strings.Join(doc.Keywords, " "))

	score := 0
	for _, tok := range queryTokens {
		if strings.Contains(title, tok) || strings.Contains(keywords, tok) {
			score += 2
			continue
		}
		if strings.Contains(content, tok) {
			score++
		}
	}
	return score
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})
	var tokens []string
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func takeDocs[T any](ranked []T, limit int, get func(T) decision.RuleDocument) []decision.RuleDocument {
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	docs := make([]decision.RuleDocument, 0, len(ranked))
	for _, r := range ranked {
		docs = append(docs, get(r))
	}
	return docs
}
