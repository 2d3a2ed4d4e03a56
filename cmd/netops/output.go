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
	"encoding/json"
	"fmt"
	"os"

	"github.com/AleutianAI/AleutianNetOps/pkg/ux"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings (degraded devices, invalid packs)
	CLIExitError    = 2 // Operation failed
)

// OutputJSON writes structured data as JSON to stdout.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// fail prints an error and exits with CLIExitError.
func fail(msg string, err error) {
	ux.Error(fmt.Sprintf("%s: %v", msg, err))
	os.Exit(CLIExitError)
}

// severityIcon maps a health status to a styled status icon.
func severityIcon(status decision.SeverityTier) string {
	switch status {
	case decision.SeverityHealthy:
		return ux.IconSuccess.Render()
	case decision.SeverityDegraded, decision.SeverityWarning:
		return ux.IconWarning.Render()
	case decision.SeverityCritical:
		return ux.IconError.Render()
	default:
		return ux.IconPending.Render()
	}
}

// severityStyle returns the lipgloss style matching a health status.
func severityStyle(status decision.SeverityTier) func(string) string {
	switch status {
	case decision.SeverityHealthy:
		return func(s string) string { return ux.Styles.Success.Render(s) }
	case decision.SeverityDegraded, decision.SeverityWarning:
		return func(s string) string { return ux.Styles.Warning.Render(s) }
	case decision.SeverityCritical:
		return func(s string) string { return ux.Styles.Error.Render(s) }
	default:
		return func(s string) string { return ux.Styles.Muted.Render(s) }
	}
}

// confidenceStyle returns the style for a routing confidence level.
func confidenceStyle(level decision.ConfidenceLevel) func(string) string {
	switch level {
	case decision.ConfidenceHigh:
		return func(s string) string { return ux.Styles.Success.Render(s) }
	case decision.ConfidenceMedium:
		return func(s string) string { return ux.Styles.Warning.Render(s) }
	default:
		return func(s string) string { return ux.Styles.Muted.Render(s) }
	}
}

// PackValidationResult holds the outcome of validating one rule pack file.
type PackValidationResult struct {
	File            string `json:"file"`
	Valid           bool   `json:"valid"`
	Name            string `json:"name,omitempty"`
	Domain          string `json:"domain,omitempty"`
	EntityType      string `json:"entity_type,omitempty"`
	SummaryFields   int    `json:"summary_fields,omitempty"`
	ClassifierTiers int    `json:"classifier_tiers,omitempty"`
	ScoringRules    int    `json:"scoring_rules,omitempty"`
	Recommendations int    `json:"recommendations,omitempty"`
	Overrides       int    `json:"overrides,omitempty"`
	Error           string `json:"error,omitempty"`
}
