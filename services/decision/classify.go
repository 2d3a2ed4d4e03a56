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

import "math"

// Health score bounds. The base is deliberately below the maximum so that
// positive scoring rules can reward exceptional capacity; scores live in
// [scoreMin, scoreMax] after clamping.
const (
	scoreBase = 100.0
	scoreMin  = 0.0
	scoreMax  = 110.0
)

// Risk thresholds over the clamped score.
const (
	riskHighBelow   = 30.0
	riskMediumBelow = 70.0
)

// classify walks the severity tiers from most to least severe and returns
// the first tier with any matching condition. Within a tier, conditions are
// independent alternatives evaluated in declaration order. No tier matching
// means the rules cannot describe this entity: UNKNOWN, not HEALTHY.
func (e *Engine) classify(rs *RuleSet, fs *FeatureSet) SeverityTier {
	for _, tier := range tierOrder {
		for i := range rs.Classification[tier] {
			if e.condTrue(&rs.Classification[tier][i], fs) {
				return tier
			}
		}
	}
	return SeverityUnknown
}

// scoreHealth starts from the base score and applies every matching scoring
// rule's impact. All matching rules contribute; impacts are additive and
// order-independent. The result is clamped to the valid score range.
func (e *Engine) scoreHealth(rs *RuleSet, fs *FeatureSet) float64 {
	score := scoreBase
	for i := range rs.Scoring {
		rule := &rs.Scoring[i]
		if e.condTrue(&rule.When, fs) {
			score += rule.Impact
		}
	}
	return clampScore(score)
}

func clampScore(score float64) float64 {
	return math.Min(scoreMax, math.Max(scoreMin, score))
}

// RiskForScore derives the risk tier from a health score. Status and score
// are computed independently, so this is a pure function of the score only.
// Scores outside the valid range, which can only arise from callers
// bypassing clampScore, map to UNKNOWN_RISK.
func RiskForScore(score float64) RiskTier {
	if math.IsNaN(score) || score < scoreMin || score > scoreMax {
		return RiskUnknown
	}
	switch {
	case score < riskHighBelow:
		return RiskHigh
	case score < riskMediumBelow:
		return RiskMedium
	default:
		return RiskLow
	}
}
