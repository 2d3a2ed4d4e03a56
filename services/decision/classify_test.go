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
	"math"
	"testing"
)

// tierRuleSet is a compact rule set exercising every tier.
func tierRuleSet(t *testing.T) *RuleSet {
	t.Helper()
	rs := &RuleSet{
		Name:          "tier_test",
		SummaryFields: []string{"service_count", "complete_config"},
		Classification: map[SeverityTier][]Condition{
			SeverityCritical: {{Field: "service_count", Operator: OpEq, Value: 0}},
			SeverityWarning:  {{Field: "complete_config", Operator: OpEq, Value: false}},
			SeverityDegraded: {{Expr: "service_count > 0 and service_count < 5"}},
			SeverityHealthy:  {{Field: "service_count", Operator: OpGe, Value: 5}},
		},
	}
	if err := rs.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return rs
}

func TestClassifyTierOrder(t *testing.T) {
	e := newTestEngine()
	rs := tierRuleSet(t)

	tests := []struct {
		name     string
		services float64
		complete bool
		want     SeverityTier
	}{
		// service_count 0 also matches nothing else; CRITICAL is first.
		{"critical wins", 0, true, SeverityCritical},
		// 3 matches both WARNING (incomplete) and DEGRADED; the more
		// severe tier is evaluated first.
		{"warning beats degraded", 3, false, SeverityWarning},
		{"degraded", 3, true, SeverityDegraded},
		{"healthy", 50, true, SeverityHealthy},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := NewFeatureSet()
			fs.Set("service_count", Number(tc.services))
			fs.Set("complete_config", Bool(tc.complete))
			if got := e.classify(rs, fs); got != tc.want {
				t.Errorf("classify = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyNoMatchIsUnknown(t *testing.T) {
	e := newTestEngine()
	rs := &RuleSet{
		Name:          "narrow",
		SummaryFields: []string{"service_count"},
		Classification: map[SeverityTier][]Condition{
			SeverityCritical: {{Field: "service_count", Operator: OpLt, Value: 0}},
		},
	}
	if err := rs.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	fs := NewFeatureSet()
	fs.Set("service_count", Number(10))
	if got := e.classify(rs, fs); got != SeverityUnknown {
		t.Errorf("classify with no matching tier = %s, want UNKNOWN", got)
	}
}

func TestScoreHealthAdditiveAndClamped(t *testing.T) {
	e := newTestEngine()
	rs := &RuleSet{
		Name:          "scoring_test",
		SummaryFields: []string{"service_count", "bandwidth_gbps"},
		Scoring: []ScoringRule{
			{Name: "no_services", When: Condition{Field: "service_count", Operator: OpEq, Value: 0}, Impact: -50},
			{Name: "big_pipe", When: Condition{Field: "bandwidth_gbps", Operator: OpGe, Value: 100}, Impact: 10},
			{Name: "dense", When: Condition{Field: "service_count", Operator: OpGe, Value: 100}, Impact: 5},
			{Name: "meltdown", When: Condition{Expr: "service_count == 0 and bandwidth_gbps == 0"}, Impact: -120},
		},
	}
	if err := rs.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	tests := []struct {
		name      string
		services  float64
		bandwidth float64
		want      float64
	}{
		{"single penalty", 0, 10, 50},
		{"no rules fire", 5, 10, 100},
		{"bonuses clamp at max", 200, 100, 110},
		{"floor clamp at zero", 0, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := NewFeatureSet()
			fs.Set("service_count", Number(tc.services))
			fs.Set("bandwidth_gbps", Number(tc.bandwidth))
			if got := e.scoreHealth(rs, fs); got != tc.want {
				t.Errorf("scoreHealth = %g, want %g", got, tc.want)
			}
		})
	}
}

func TestRiskForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskTier
	}{
		{0, RiskHigh},
		{29.9, RiskHigh},
		{30, RiskMedium},
		{50, RiskMedium},
		{69.9, RiskMedium},
		{70, RiskLow},
		{100, RiskLow},
		{110, RiskLow},
		{-1, RiskUnknown},
		{110.1, RiskUnknown},
		{math.NaN(), RiskUnknown},
	}

	for _, tc := range tests {
		if got := RiskForScore(tc.score); got != tc.want {
			t.Errorf("RiskForScore(%g) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

// Status and score are independent: a CRITICAL device can still carry a
// mid-range score, and the risk tier follows the score alone.
func TestStatusScoreIndependence(t *testing.T) {
	e := newTestEngine()
	rs := tierRuleSet(t)
	rs.Scoring = []ScoringRule{
		{Name: "no_services", When: Condition{Field: "service_count", Operator: OpEq, Value: 0}, Impact: -50},
	}
	if err := rs.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	fs := NewFeatureSet()
	fs.Set("service_count", Number(0))
	fs.Set("complete_config", Bool(true))

	if got := e.classify(rs, fs); got != SeverityCritical {
		t.Fatalf("classify = %s, want CRITICAL", got)
	}
	score := e.scoreHealth(rs, fs)
	if score != 50 {
		t.Fatalf("scoreHealth = %g, want 50", score)
	}
	if RiskForScore(score) != RiskMedium {
		t.Errorf("risk = %s, want MEDIUM_RISK", RiskForScore(score))
	}
}
