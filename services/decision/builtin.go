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
	"sync"

	"github.com/AleutianAI/AleutianNetOps/services/decision/rulepacks"
)

var (
	builtinOnce sync.Once
	builtinSets map[string]*RuleSet
)

// builtinRuleSet returns the embedded rule set for the pair, or the minimal
// rule set when no pack covers it. The embedded packs are parsed once per
// process.
func builtinRuleSet(domain, entityType string) *RuleSet {
	builtinOnce.Do(loadBuiltinPacks)
	if rs, ok := builtinSets[cacheKey(domain, entityType)]; ok {
		return rs
	}
	return minimalRuleSet(domain, entityType)
}

func loadBuiltinPacks() {
	builtinSets = make(map[string]*RuleSet)
	for _, raw := range [][]byte{rulepacks.FTTHOLTHealth, rulepacks.QueryRouting} {
		doc := RuleDocument{ExecutableRules: string(raw)}
		rs, err := ruleSetFromDocument(&doc, "", "")
		if err != nil {
			// A malformed embedded pack is a build defect; the minimal
			// rule set covers the hole until it is fixed.
			continue
		}
		rs.Source = SourceBuiltin
		builtinSets[cacheKey(rs.Domain, rs.EntityType)] = rs
	}
}

// minimalRuleSet is the terminal fallback: no classification knowledge at
// all. It is constructed in code rather than embedded YAML so the
// emergency path cannot itself fail to parse. Entities evaluated against
// it come out UNKNOWN with a single remediation hint.
func minimalRuleSet(domain, entityType string) *RuleSet {
	rs := &RuleSet{
		Name:          "minimal_fallback",
		Domain:        domain,
		EntityType:    entityType,
		Source:        SourceBuiltin,
		SummaryFields: []string{"device_type", "environment"},
		Recommendations: []RecommendationRule{
			{
				When:     Condition{Expr: "true"},
				Message:  "No analysis rules available for this entity type, verify knowledge base connectivity",
				Priority: PriorityMedium,
			},
		},
	}
	// The only expression above is a literal; compilation cannot fail.
	_ = rs.Compile()
	return rs
}
