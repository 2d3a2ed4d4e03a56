// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianNetOps/pkg/ux"
	"github.com/AleutianAI/AleutianNetOps/services/knowledge"
)

// validatePackFile compiles one rule pack file without touching any
// server. The second return reports a read failure, which is an
// operational error rather than a validation finding.
func validatePackFile(path string) (PackValidationResult, bool) {
	result := PackValidationResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = err.Error()
		return result, true
	}

	rs, err := knowledge.ParseRulePack(data)
	if err != nil {
		result.Error = err.Error()
		return result, false
	}

	result.Valid = true
	result.Name = rs.Name
	result.Domain = rs.Domain
	result.EntityType = rs.EntityType
	result.SummaryFields = len(rs.SummaryFields)
	result.ClassifierTiers = len(rs.Classification)
	result.ScoringRules = len(rs.Scoring)
	result.Recommendations = len(rs.Recommendations)
	result.Overrides = len(rs.Overrides)
	return result, false
}

func runRulesValidate(cmd *cobra.Command, args []string) {
	results := make([]PackValidationResult, 0, len(args))
	invalid := 0
	unreadable := 0
	for _, path := range args {
		res, readFailed := validatePackFile(path)
		if readFailed {
			unreadable++
		}
		if !res.Valid {
			invalid++
		}
		results = append(results, res)
	}

	if jsonOutput {
		if err := OutputJSON(results, compactJSON); err != nil {
			fail("Error generating JSON output", err)
		}
	} else {
		for _, res := range results {
			if !res.Valid {
				fmt.Printf("%s %s\n", ux.IconError.Render(), ux.Styles.Bold.Render(res.File))
				fmt.Printf("   %s\n", ux.Styles.Error.Render(res.Error))
				continue
			}
			fmt.Printf("%s %s\n", ux.IconSuccess.Render(), ux.Styles.Bold.Render(res.File))
			fmt.Printf("   %s\n", ux.Styles.Muted.Render(fmt.Sprintf(
				"%s (%s/%s): %d summary fields, %d tiers, %d scoring, %d recommendations, %d overrides",
				res.Name, res.Domain, res.EntityType, res.SummaryFields,
				res.ClassifierTiers, res.ScoringRules, res.Recommendations, res.Overrides)))
		}
		if len(results) > 1 {
			ux.Summary(len(results)-invalid, invalid, len(results))
		}
	}

	switch {
	case unreadable > 0:
		os.Exit(CLIExitError)
	case invalid > 0:
		os.Exit(CLIExitFindings)
	}
}

// rulePackPushResult mirrors the assistant's rule pack upload response.
type rulePackPushResult struct {
	Status     string `json:"status"`
	Source     string `json:"source"`
	Name       string `json:"name"`
	Domain     string `json:"domain"`
	EntityType string `json:"entity_type"`
}

func runRulesPush(cmd *cobra.Command, args []string) {
	// Compile everything locally first so a broken pack aborts the whole
	// push instead of leaving the knowledge base half updated.
	contents := make(map[string][]byte, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fail(fmt.Sprintf("Could not read %s", path), err)
		}
		if _, err := knowledge.ParseRulePack(data); err != nil {
			fail(fmt.Sprintf("Invalid rule pack %s", path), err)
		}
		contents[path] = data
	}

	spinner := ux.NewProgressSpinner("Pushing rule packs", len(args))
	spinner.Start()

	pushed := make([]rulePackPushResult, 0, len(args))
	for _, path := range args {
		var result rulePackPushResult
		err := postJSON("/v1/rulepacks", map[string]string{
			"source":  filepath.Base(path),
			"content": string(contents[path]),
		}, &result)
		if err != nil {
			spinner.StopWithError("Push failed")
			fail(fmt.Sprintf("Error pushing %s", path), err)
		}
		pushed = append(pushed, result)
		spinner.Increment()
	}
	spinner.Stop()

	for _, result := range pushed {
		ux.Success(fmt.Sprintf("Pushed %s: %s rules for %s devices in the %s domain",
			result.Source, result.Name, result.EntityType, result.Domain))
	}
}
