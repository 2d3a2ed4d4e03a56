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
	"fmt"

	"gopkg.in/yaml.v3"
)

// SeverityTier is the ordered health classification of a network entity.
// Tiers are evaluated strictly from most to least severe; the first tier
// with a matching condition wins. Unknown is the terminal fallback when no
// tier matches, it never participates in evaluation order.
type SeverityTier string

const (
	SeverityCritical SeverityTier = "CRITICAL"
	SeverityWarning  SeverityTier = "WARNING"
	SeverityDegraded SeverityTier = "DEGRADED"
	SeverityHealthy  SeverityTier = "HEALTHY"
	SeverityUnknown  SeverityTier = "UNKNOWN"
)

// tierOrder fixes the evaluation sequence. Classification must never depend
// on map iteration order.
var tierOrder = [...]SeverityTier{SeverityCritical, SeverityWarning, SeverityDegraded, SeverityHealthy}

// Rank returns the position of the tier in the severity ordering, with 0 the
// most severe. Unknown ranks below Healthy.
func (s SeverityTier) Rank() int {
	for i, t := range tierOrder {
		if s == t {
			return i
		}
	}
	return len(tierOrder)
}

func (s *SeverityTier) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := SeverityTier(raw)
	switch incoming {
	case SeverityCritical, SeverityWarning, SeverityDegraded, SeverityHealthy, SeverityUnknown:
		*s = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for SeverityTier: %q", incoming)
	}
}

// RiskTier is derived from the health score alone and is independent of the
// classified severity. A device can be CRITICAL with MEDIUM_RISK when its
// score says the blast radius is contained.
type RiskTier string

const (
	RiskLow     RiskTier = "LOW_RISK"
	RiskMedium  RiskTier = "MEDIUM_RISK"
	RiskHigh    RiskTier = "HIGH_RISK"
	RiskUnknown RiskTier = "UNKNOWN_RISK"
)

// ConfidenceLevel expresses how much knowledge-base evidence backed a
// routing decision.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// Priority marks how urgent a recommendation is. It affects presentation
// only; see the package documentation for the ordering contract.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p *Priority) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	incoming := Priority(raw)
	switch incoming {
	case PriorityLow, PriorityMedium, PriorityHigh:
		*p = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Priority: %q", incoming)
	}
}

// FieldType declares how an absent feature value is defaulted during
// extraction: numbers to 0, booleans to false, strings to "Unknown".
type FieldType string

const (
	FieldNumber FieldType = "number"
	FieldString FieldType = "string"
	FieldBool   FieldType = "bool"
)

// Condition is a single testable predicate over a feature set. Exactly one
// form is populated:
//
//   - triple form: Field, Operator and Value, e.g. {service_count, ==, 0}
//   - expression form: Expr holds a boolean expression in the restricted
//     grammar parsed by this package, e.g. "service_count == 0 and managed_by_inmanta"
//
// Conditions never raise: any parse failure, type mismatch or unresolvable
// field evaluates to false and is reported at debug level by the engine.
type Condition struct {
	Field    string `yaml:"field,omitempty" json:"field,omitempty"`
	Operator string `yaml:"operator,omitempty" json:"operator,omitempty"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
	Expr     string `yaml:"expr,omitempty" json:"expr,omitempty"`

	// compiled is the parsed expression tree, populated once by
	// RuleSet.Compile and reused on every evaluation.
	compiled *exprNode `yaml:"-"`
}

// Comparison operators accepted by the triple form.
const (
	OpEq    = "=="
	OpNe    = "!="
	OpLt    = "<"
	OpLe    = "<="
	OpGt    = ">"
	OpGe    = ">="
	OpIn    = "in"
	OpNotIn = "not_in"
)

// ScoringRule adjusts the health score when its condition holds. Impacts
// are additive on top of the base score and may be negative.
type ScoringRule struct {
	Name   string    `yaml:"name"`
	When   Condition `yaml:"when"`
	Impact float64   `yaml:"impact"`
}

// RecommendationRule emits an operator-facing action item when its
// condition holds. HIGH priority messages are prefixed with an urgency
// marker at emission time.
type RecommendationRule struct {
	When     Condition `yaml:"when"`
	Message  string    `yaml:"message"`
	Priority Priority  `yaml:"priority"`
}

// EnvironmentOverride escalates the classified severity for entities in a
// named environment. Overrides only ever escalate to CRITICAL; they never
// downgrade a classification.
type EnvironmentOverride struct {
	Environment  string             `yaml:"environment"`
	MinCounts    map[string]float64 `yaml:"min_counts,omitempty"`
	RequireFlags map[string]bool    `yaml:"require_flags,omitempty"`
}

// RuleSet is the complete, compiled rule knowledge for one (domain, entity
// type) pair. Rule sets are immutable after Compile and safe for concurrent
// use; the retriever caches them for the process lifetime.
type RuleSet struct {
	Name       string `yaml:"name"`
	Domain     string `yaml:"domain"`
	EntityType string `yaml:"entity_type"`

	// SummaryFields lists the entity fields projected into the feature
	// set, in declaration order. Order is part of the contract: result
	// output and absent-field defaulting are deterministic because of it.
	SummaryFields []string `yaml:"summary_fields"`

	// FieldTypes overrides the name-convention defaulting table for
	// individual fields. Most rule sets rely on the conventions.
	FieldTypes map[string]FieldType `yaml:"field_types,omitempty"`

	Classification  map[SeverityTier][]Condition `yaml:"classification"`
	Scoring         []ScoringRule                `yaml:"scoring"`
	Recommendations []RecommendationRule         `yaml:"recommendations"`
	Overrides       []EnvironmentOverride        `yaml:"overrides,omitempty"`

	// Source records which retrieval stage produced this rule set:
	// "similarity", "text" or "builtin". Set by the retriever.
	Source string `yaml:"-" json:"-"`
}

// Compile parses every expression-form condition in the rule set into its
// evaluation tree. Rule sets must be compiled exactly once before use;
// evaluation never parses.
func (rs *RuleSet) Compile() error {
	for tier := range rs.Classification {
		conds := rs.Classification[tier]
		for i := range conds {
			if err := conds[i].compile(); err != nil {
				return fmt.Errorf("classification %s condition %d: %w", tier, i, err)
			}
		}
	}
	for i := range rs.Scoring {
		if err := rs.Scoring[i].When.compile(); err != nil {
			return fmt.Errorf("scoring rule %q: %w", rs.Scoring[i].Name, err)
		}
	}
	for i := range rs.Recommendations {
		if err := rs.Recommendations[i].When.compile(); err != nil {
			return fmt.Errorf("recommendation %d: %w", i, err)
		}
	}
	return nil
}

func (c *Condition) compile() error {
	if c.Expr == "" {
		return nil
	}
	node, err := parseExpression(c.Expr)
	if err != nil {
		return fmt.Errorf("parse %q: %w", c.Expr, err)
	}
	c.compiled = node
	return nil
}

// fieldType resolves the declared or conventional type for a summary field.
func (rs *RuleSet) fieldType(name string) FieldType {
	if ft, ok := rs.FieldTypes[name]; ok {
		return ft
	}
	return conventionalFieldType(name)
}

// DecisionResult is the outcome of a health classification. Score is
// clamped to [0, 110]; Risk is a pure function of Score. Features carries
// the exact values the rules were evaluated against so operators can audit
// the outcome.
type DecisionResult struct {
	Status          SeverityTier   `json:"status"`
	Score           float64        `json:"health_score"`
	Risk            RiskTier       `json:"risk_level"`
	Recommendations []string       `json:"recommendations"`
	Features        map[string]any `json:"features"`
	FeatureOrder    []string       `json:"-"`
	RuleSet         string         `json:"rule_set"`
	RuleSource      string         `json:"rule_source"`
}

// RoutingDecision is the outcome of query-intent analysis. An empty
// ToolRecommendation means no tool scored above zero.
type RoutingDecision struct {
	ConfidenceLevel    ConfidenceLevel `json:"confidence_level"`
	ToolRecommendation string          `json:"tool_recommendation,omitempty"`
	AnalysisType       AnalysisType    `json:"analysis_type"`
	Reasoning          string          `json:"reasoning"`
	Recommendations    []string        `json:"recommendations,omitempty"`
}
