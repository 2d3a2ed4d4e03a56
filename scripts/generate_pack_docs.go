// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// generate_pack_docs generates a markdown reference from a directory of rule packs.
//
// Usage:
//
//	go run scripts/generate_pack_docs.go [dir] > docs/rule_pack_reference.md
//
// The directory defaults to services/decision/rulepacks. Every pack is run
// through the same validation the assistant applies at ingest time, so a pack
// that renders here will also load.
//
// The generated documentation includes:
//   - Pack inventory with domains and entity types
//   - Classification tiers and their conditions
//   - Scoring rules with impacts
//   - Recommendations and environment overrides
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
)

// packDoc pairs a parsed rule set with the file it came from.
type packDoc struct {
	File    string
	RuleSet *decision.RuleSet
}

// severityOrder fixes the rendering sequence for classification tiers, most
// severe first, matching the engine's evaluation order.
var severityOrder = []decision.SeverityTier{
	decision.SeverityCritical,
	decision.SeverityWarning,
	decision.SeverityDegraded,
	decision.SeverityHealthy,
}

func main() {
	dir := "services/decision/rulepacks"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing %s: %v\n", dir, err)
		os.Exit(1)
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "No rule packs found in %s\n", dir)
		os.Exit(1)
	}

	var packs []packDoc
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
			os.Exit(1)
		}
		rs, err := knowledge.ParseRulePack(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing %s: %v\n", path, err)
			os.Exit(1)
		}
		packs = append(packs, packDoc{File: filepath.Base(path), RuleSet: rs})
	}

	generateMarkdown(dir, packs)
}

// generateMarkdown outputs the full markdown documentation.
func generateMarkdown(dir string, packs []packDoc) {
	fmt.Println("# Rule Pack Reference")
	fmt.Println()
	fmt.Println("## Overview")
	fmt.Println()
	fmt.Println("Rule packs are YAML documents that carry the classification, scoring, and")
	fmt.Println("recommendation knowledge for one (domain, entity type) pair. The assistant")
	fmt.Println("loads them into the knowledge base at startup and compiles them once; the")
	fmt.Printf("built-in fallback copies live in `%s`.\n", dir)
	fmt.Println()
	fmt.Printf("**Generated:** %s\n", time.Now().Format("2006-01-02 15:04:05 UTC"))
	fmt.Println()

	// Statistics
	totalConditions := 0
	totalScoring := 0
	totalRecommendations := 0
	totalOverrides := 0
	for _, p := range packs {
		for _, conds := range p.RuleSet.Classification {
			totalConditions += len(conds)
		}
		totalScoring += len(p.RuleSet.Scoring)
		totalRecommendations += len(p.RuleSet.Recommendations)
		totalOverrides += len(p.RuleSet.Overrides)
	}

	fmt.Println("## Summary Statistics")
	fmt.Println()
	fmt.Println("| Metric | Count |")
	fmt.Println("|--------|-------|")
	fmt.Printf("| Rule Packs | %d |\n", len(packs))
	fmt.Printf("| Classification Conditions | %d |\n", totalConditions)
	fmt.Printf("| Scoring Rules | %d |\n", totalScoring)
	fmt.Printf("| Recommendations | %d |\n", totalRecommendations)
	fmt.Printf("| Environment Overrides | %d |\n", totalOverrides)
	fmt.Println()

	// Quick reference table (all packs)
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Quick Reference")
	fmt.Println()
	fmt.Println("| Pack | Domain | Entity Type | Tiers | Scoring | Recommendations |")
	fmt.Println("|------|--------|-------------|-------|---------|-----------------|")
	for _, p := range packs {
		rs := p.RuleSet
		fmt.Printf("| `%s` | %s | %s | %d | %d | %d |\n",
			rs.Name,
			rs.Domain,
			rs.EntityType,
			len(rs.Classification),
			len(rs.Scoring),
			len(rs.Recommendations),
		)
	}
	fmt.Println()

	// Detailed sections per pack
	for _, p := range packs {
		fmt.Println("---")
		fmt.Println()
		printPackDetails(p)
	}

	// Footer
	fmt.Println("---")
	fmt.Println()
	fmt.Printf("*This document is auto-generated from the packs in `%s`.*\n", dir)
	fmt.Println()
	fmt.Println("*To regenerate: `go run scripts/generate_pack_docs.go > docs/rule_pack_reference.md`*")
}

// printPackDetails prints detailed information for a single rule pack.
func printPackDetails(p packDoc) {
	rs := p.RuleSet

	fmt.Printf("## `%s`\n", rs.Name)
	fmt.Println()
	fmt.Println("| Property | Value |")
	fmt.Println("|----------|-------|")
	fmt.Printf("| **File** | `%s` |\n", p.File)
	fmt.Printf("| **Domain** | %s |\n", rs.Domain)
	fmt.Printf("| **Entity Type** | %s |\n", rs.EntityType)
	fmt.Printf("| **Summary Fields** | %s |\n", "`"+strings.Join(rs.SummaryFields, "`, `")+"`")
	fmt.Println()

	if len(rs.FieldTypes) > 0 {
		fmt.Println("**Field type overrides:**")
		fmt.Println()
		fmt.Println("| Field | Type |")
		fmt.Println("|-------|------|")
		for _, field := range rs.SummaryFields {
			if ft, ok := rs.FieldTypes[field]; ok {
				fmt.Printf("| `%s` | %s |\n", field, ft)
			}
		}
		fmt.Println()
	}

	if len(rs.Classification) > 0 {
		fmt.Println("### Classification")
		fmt.Println()
		fmt.Println("Tiers are evaluated most severe first; the first tier with a matching")
		fmt.Println("condition wins.")
		fmt.Println()
		fmt.Println("| Tier | Condition |")
		fmt.Println("|------|-----------|")
		for _, tier := range severityOrder {
			for _, cond := range rs.Classification[tier] {
				fmt.Printf("| %s | %s |\n", tier, formatCondition(cond))
			}
		}
		fmt.Println()
	}

	if len(rs.Scoring) > 0 {
		fmt.Println("### Scoring")
		fmt.Println()
		fmt.Println("Impacts are additive on top of the base score.")
		fmt.Println()
		fmt.Println("| Rule | Condition | Impact |")
		fmt.Println("|------|-----------|--------|")
		for _, rule := range rs.Scoring {
			fmt.Printf("| `%s` | %s | %+g |\n", rule.Name, formatCondition(rule.When), rule.Impact)
		}
		fmt.Println()
	}

	if len(rs.Recommendations) > 0 {
		fmt.Println("### Recommendations")
		fmt.Println()
		fmt.Println("Emitted in the order written in the pack.")
		fmt.Println()
		fmt.Println("| Priority | Condition | Message |")
		fmt.Println("|----------|-----------|---------|")
		for _, rec := range rs.Recommendations {
			fmt.Printf("| %s | %s | %s |\n", rec.Priority, formatCondition(rec.When), rec.Message)
		}
		fmt.Println()
	}

	if len(rs.Overrides) > 0 {
		fmt.Println("### Environment Overrides")
		fmt.Println()
		fmt.Println("Overrides only ever escalate to CRITICAL.")
		fmt.Println()
		fmt.Println("| Environment | Minimum Counts | Required Flags |")
		fmt.Println("|-------------|----------------|----------------|")
		for _, ov := range rs.Overrides {
			fmt.Printf("| %s | %s | %s |\n",
				ov.Environment,
				formatFloatMap(ov.MinCounts),
				formatBoolMap(ov.RequireFlags),
			)
		}
		fmt.Println()
	}
}

// formatCondition renders either condition form as inline markdown.
func formatCondition(c decision.Condition) string {
	if c.Expr != "" {
		return fmt.Sprintf("`%s`", c.Expr)
	}
	return fmt.Sprintf("`%s %s %v`", c.Field, c.Operator, c.Value)
}

// formatFloatMap renders a field-to-threshold map, or a dash when empty.
func formatFloatMap(m map[string]float64) string {
	if len(m) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("`%s >= %g`", k, v))
	}
	return strings.Join(parts, ", ")
}

// formatBoolMap renders a field-to-flag map, or a dash when empty.
func formatBoolMap(m map[string]bool) string {
	if len(m) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, fmt.Sprintf("`%s == %t`", k, v))
	}
	return strings.Join(parts, ", ")
}
