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

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const (
	similarityLimit = 3
	textSearchLimit = 5
)

// Rule set provenance values recorded in RuleSet.Source.
const (
	SourceSimilarity = "similarity"
	SourceText       = "text"
	SourceBuiltin    = "builtin"
)

// retriever resolves and caches rule sets per (domain, entity type). The
// cache lives for the process lifetime: knowledge-base edits become visible
// only after ClearRuleCache, which operators trigger explicitly or through
// the rule-pack watcher.
//
// Concurrent first requests for the same key may each resolve and the last
// writer wins. Rule sets are immutable after compile, so redundant
// resolution wastes a lookup but never corrupts state.
type retriever struct {
	store    RuleStore
	embedder EmbeddingProvider
	log      *slog.Logger

	mu    sync.RWMutex
	cache map[string]*RuleSet

	hits   atomic.Int64
	misses atomic.Int64
}

func newRetriever(store RuleStore, embedder EmbeddingProvider, log *slog.Logger) *retriever {
	return &retriever{
		store:    store,
		embedder: embedder,
		log:      log,
		cache:    make(map[string]*RuleSet),
	}
}

func cacheKey(domain, entityType string) string {
	return domain + "/" + entityType
}

// rules returns the rule set for the pair, resolving it on first use.
// Resolution cannot fail: every failure path degrades to the next stage
// and the built-in rules are always available.
func (r *retriever) rules(ctx context.Context, domain, entityType string) *RuleSet {
	key := cacheKey(domain, entityType)

	r.mu.RLock()
	rs, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		r.hits.Add(1)
		return rs
	}
	r.misses.Add(1)

	rs = r.resolve(ctx, domain, entityType)

	r.mu.Lock()
	r.cache[key] = rs
	r.mu.Unlock()
	return rs
}

func (r *retriever) clear() {
	r.mu.Lock()
	r.cache = make(map[string]*RuleSet)
	r.mu.Unlock()
}

func (r *retriever) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// resolve runs the retrieval ladder: similarity search, then text search,
// then the built-in packs. Stage failures are logged and absorbed.
func (r *retriever) resolve(ctx context.Context, domain, entityType string) *RuleSet {
	query := fmt.Sprintf("%s %s health analysis rules", domain, entityType)

	if rs := r.fromSimilarity(ctx, query, domain, entityType); rs != nil {
		r.log.Debug("rules resolved by similarity search",
			"domain", domain, "entity_type", entityType, "rule_set", rs.Name)
		return rs
	}
	if rs := r.fromTextSearch(ctx, query, domain, entityType); rs != nil {
		r.log.Debug("rules resolved by text search",
			"domain", domain, "entity_type", entityType, "rule_set", rs.Name)
		return rs
	}

	rs := builtinRuleSet(domain, entityType)
	r.log.Warn("falling back to built-in rules",
		"domain", domain, "entity_type", entityType, "rule_set", rs.Name)
	return rs
}

func (r *retriever) fromSimilarity(ctx context.Context, query, domain, entityType string) *RuleSet {
	if r.store == nil || r.embedder == nil {
		return nil
	}
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.log.Debug("rule query embedding failed", "error", err)
		return nil
	}
	docs, err := r.store.SimilaritySearch(ctx, vector, domain, entityType, similarityLimit)
	if err != nil {
		r.log.Debug("similarity search failed", "error", err)
		return nil
	}
	return r.firstUsable(docs, domain, entityType, SourceSimilarity, false)
}

func (r *retriever) fromTextSearch(ctx context.Context, query, domain, entityType string) *RuleSet {
	if r.store == nil {
		return nil
	}
	docs, err := r.store.TextSearch(ctx, query, domain, entityType, textSearchLimit)
	if err != nil {
		r.log.Debug("text search failed", "error", err)
		return nil
	}
	// Text search ranks by keyword relevance, not meaning, so demand an
	// exact domain and device type match before trusting a document.
	return r.firstUsable(docs, domain, entityType, SourceText, true)
}

// firstUsable walks results in rank order and returns the first document
// that parses into a valid rule set. Unparsable documents are skipped, not
// fatal: one malformed knowledge-base entry must not disable its siblings.
func (r *retriever) firstUsable(docs []RuleDocument, domain, entityType, source string, strictMatch bool) *RuleSet {
	for i := range docs {
		doc := &docs[i]
		if doc.ExecutableRules == "" {
			continue
		}
		if strictMatch {
			if !strings.EqualFold(doc.Domain, domain) || !strings.EqualFold(doc.DeviceType, entityType) {
				continue
			}
		}
		rs, err := ruleSetFromDocument(doc, domain, entityType)
		if err != nil {
			r.log.Debug("rule document rejected", "id", doc.ID, "title", doc.Title, "error", err)
			continue
		}
		rs.Source = source
		return rs
	}
	return nil
}

// ruleSetFromDocument decodes and compiles the YAML rule payload of a
// knowledge-base document. Documents may omit name, domain and entity type;
// those default from the document metadata and the retrieval pair.
func ruleSetFromDocument(doc *RuleDocument, domain, entityType string) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal([]byte(doc.ExecutableRules), &rs); err != nil {
		return nil, fmt.Errorf("decode executable rules: %w", err)
	}
	if rs.Name == "" {
		rs.Name = doc.Title
	}
	if rs.Domain == "" {
		rs.Domain = domain
	}
	if rs.EntityType == "" {
		rs.EntityType = entityType
	}
	if domain != "" && !strings.EqualFold(rs.Domain, domain) {
		return nil, fmt.Errorf("document targets domain %q, wanted %q", rs.Domain, domain)
	}
	if len(rs.SummaryFields) == 0 {
		return nil, fmt.Errorf("rule set %q declares no summary fields", rs.Name)
	}
	if err := rs.Compile(); err != nil {
		return nil, fmt.Errorf("compile rule set %q: %w", rs.Name, err)
	}
	return &rs, nil
}
