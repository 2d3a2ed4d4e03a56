// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package decision is the knowledge-driven decision engine behind the NetOps
assistant. It serves two decision domains with one rule machinery:

  - network_health: classify a device into an ordered severity tier, score
    its health, derive risk and emit operator recommendations.
  - query_routing: map a natural-language question to an intent family and
    a tool recommendation with a confidence level.

Rule knowledge lives in the knowledge base behind the RuleStore port and is
retrieved per (domain, entity type) with a similarity-first ladder, cached
for the process lifetime. Built-in rule packs keep both domains functional
when the knowledge base is down; every failure degrades to a documented
fallback instead of an error.
*/
package decision

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("aleutian.netops.decision")

// DefaultHealthDomain is used when callers pass an empty domain to
// ClassifyHealth.
const DefaultHealthDomain = "network_health"

// ErrNilEntity is returned when ClassifyHealth receives a nil entity. It is
// the only error the engine surfaces; everything downstream degrades.
var ErrNilEntity = errors.New("decision: entity is nil")

// Config carries the collaborators an Engine is built from. Store and
// Embedder may be nil: the engine then runs on built-in rules only, which
// keeps single-binary deployments and tests working without a knowledge
// base.
type Config struct {
	Store    RuleStore
	Embedder EmbeddingProvider
	Logger   *slog.Logger
}

// Engine evaluates both decision domains. Construct it once with NewEngine
// and share it; all methods are safe for concurrent use.
//
// There is deliberately no package-level default engine. Every caller
// receives its dependencies through the constructor, which keeps tests
// hermetic and lets one process host engines against different stores.
type Engine struct {
	store    RuleStore
	embedder EmbeddingProvider
	log      *slog.Logger
	retr     *retriever
}

// NewEngine builds an Engine from its configuration.
//
// # Inputs
//
//   - cfg: collaborator ports. A nil Logger falls back to slog.Default().
//
// # Outputs
//
//   - *Engine: ready for concurrent use. Never nil.
func NewEngine(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		log:      log,
		retr:     newRetriever(cfg.Store, cfg.Embedder, log),
	}
	if cfg.Store == nil {
		log.Warn("no rule store configured, decision engine running on built-in rules only")
	}
	return e
}

// ClassifyHealth runs the full health analysis pipeline for one entity:
// rule retrieval, feature extraction, tier classification, environment
// overrides, scoring, risk derivation and recommendations.
//
// # Description
//
// The entity is read through its FieldAccessor only; the engine never
// inspects the concrete type. The entity's "device_type" field selects the
// rule set within the domain, defaulting to "generic". Identical inputs
// always produce identical results: evaluation consults nothing outside
// the extracted feature set and the compiled rules.
//
// # Inputs
//
//   - ctx: carries cancellation into rule retrieval. Evaluation itself
//     does not block.
//   - entity: the device or resource under analysis. Must be non-nil.
//   - domain: decision domain, empty for DefaultHealthDomain.
//
// # Outputs
//
//   - *DecisionResult: never nil when err is nil. Status UNKNOWN with
//     UNKNOWN_RISK signals that no rule knowledge could describe the
//     entity, not a failure.
//   - error: ErrNilEntity only. Retrieval and evaluation failures degrade
//     per the fallback ladder and are reported through logs.
//
// # Thread Safety
//
// Safe for concurrent use.
func (e *Engine) ClassifyHealth(ctx context.Context, entity FieldAccessor, domain string) (*DecisionResult, error) {
	if entity == nil {
		return nil, ErrNilEntity
	}
	if domain == "" {
		domain = DefaultHealthDomain
	}

	ctx, span := tracer.Start(ctx, "decision.ClassifyHealth")
	defer span.End()

	entityType := entityTypeOf(entity)
	span.SetAttributes(
		attribute.String("decision.domain", domain),
		attribute.String("decision.entity_type", entityType),
	)

	rs := e.retr.rules(ctx, domain, entityType)
	fs := extractFeatures(entity, rs)

	result := &DecisionResult{
		Features:     fs.ToMap(),
		FeatureOrder: fs.Names(),
		RuleSet:      rs.Name,
		RuleSource:   rs.Source,
	}

	if rs.degenerate() {
		// The minimal fallback carries no classification or scoring
		// knowledge: report honest ignorance rather than a healthy 100.
		result.Status = SeverityUnknown
		result.Score = 0
		result.Risk = RiskUnknown
		result.Recommendations = e.buildRecommendations(rs, fs)
		span.SetAttributes(attribute.String("decision.status", string(result.Status)))
		e.log.Info("health classification degraded to minimal rules",
			"domain", domain, "entity_type", entityType)
		return result, nil
	}

	status := e.classify(rs, fs)
	status, violations := e.applyOverrides(rs, fs, status)
	if len(violations) > 0 {
		e.log.Info("environment override escalated classification",
			"entity_type", entityType, "violations", violations)
	}

	result.Status = status
	result.Score = e.scoreHealth(rs, fs)
	result.Risk = RiskForScore(result.Score)
	result.Recommendations = e.buildRecommendations(rs, fs)

	span.SetAttributes(
		attribute.String("decision.status", string(result.Status)),
		attribute.Float64("decision.score", result.Score),
	)
	e.log.Debug("health classification complete",
		"domain", domain,
		"entity_type", entityType,
		"status", result.Status,
		"score", result.Score,
		"risk", result.Risk,
		"rule_source", result.RuleSource)

	return result, nil
}

// ClearRuleCache drops every cached rule set. The next decision in each
// (domain, entity type) pair re-runs the retrieval ladder, picking up
// knowledge-base edits. Safe to call at any time, including concurrently
// with decisions in flight; those finish on the rule sets they already
// hold.
func (e *Engine) ClearRuleCache() {
	e.retr.clear()
	e.log.Info("rule cache cleared")
}

// CacheStats reports rule cache effectiveness for metrics export.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

func (e *Engine) CacheStats() CacheStats {
	return CacheStats{
		Hits:   e.retr.hits.Load(),
		Misses: e.retr.misses.Load(),
		Size:   e.retr.size(),
	}
}

// condTrue is the engine-side wrapper around condition evaluation: any
// evaluation error demotes the condition to false with a debug log line,
// never an error to the caller.
func (e *Engine) condTrue(c *Condition, fs *FeatureSet) bool {
	ok, err := evalCondition(c, fs)
	if err != nil {
		e.log.Debug("condition evaluation failed",
			"condition", c.describe(), "error", err)
		return false
	}
	return ok
}

// degenerate reports whether the rule set carries no classification or
// scoring knowledge at all, i.e. it is the minimal fallback shape.
func (rs *RuleSet) degenerate() bool {
	return len(rs.Classification) == 0 && len(rs.Scoring) == 0
}

// entityTypeOf derives the rule-set key from the entity itself so that
// ClassifyHealth keeps its two-argument shape.
func entityTypeOf(entity FieldAccessor) string {
	v, ok := entity.Get("device_type")
	if !ok {
		return "generic"
	}
	s, ok := v.AsString()
	if !ok || s == "" {
		return "generic"
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
