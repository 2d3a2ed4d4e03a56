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

// urgentPrefix marks HIGH priority recommendations in the emitted text.
const urgentPrefix = "URGENT: "

// maxRecommendations caps how many action items a single decision carries.
const maxRecommendations = 3

// buildRecommendations evaluates recommendation rules in declaration order
// and returns at most maxRecommendations deduplicated messages.
//
// Ordering contract: rules are NOT re-sorted by priority. Rule authors
// order their recommendation blocks most-important-first, and a HIGH
// priority rule declared after three matching LOW rules will be truncated
// away. Priority affects the urgency prefix only. Downstream consumers and
// operator runbooks rely on this, so it stays even though a sort would be
// a one-liner.
func (e *Engine) buildRecommendations(rs *RuleSet, fs *FeatureSet) []string {
	var out []string
	seen := make(map[string]struct{})
	for i := range rs.Recommendations {
		rule := &rs.Recommendations[i]
		if !e.condTrue(&rule.When, fs) {
			continue
		}
		msg := rule.Message
		if rule.Priority == PriorityHigh {
			msg = urgentPrefix + msg
		}
		if _, dup := seen[msg]; dup {
			continue
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
		if len(out) == maxRecommendations {
			break
		}
	}
	return out
}
