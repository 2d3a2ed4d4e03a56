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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianNetOps/pkg/ux"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

func runHealthCommand(cmd *cobra.Command, args []string) {
	body := map[string]any{"device_ids": args}
	if healthDomain != "" {
		body["domain"] = healthDomain
	}

	spin := ux.NewSpinner("Classifying device health...")
	spin.Start()
	var resp datatypes.HealthAnalysisResponse
	err := postJSON("/v1/analysis/health", body, &resp)
	spin.Stop()
	if err != nil {
		fail("Health analysis failed", err)
	}

	if jsonOutput {
		if err := OutputJSON(resp, compactJSON); err != nil {
			fail("Failed to encode output", err)
		}
		os.Exit(healthExitCode(resp))
	}

	fmt.Println(resp.Summary)

	if len(resp.Reports) > 0 {
		fmt.Println()
		for _, report := range resp.Reports {
			style := severityStyle(report.Result.Status)
			fmt.Printf("%s %s %s  score %.0f\n",
				severityIcon(report.Result.Status),
				ux.Styles.Bold.Render(report.DeviceID),
				style(string(report.Result.Status)),
				report.Result.Score,
			)
		}
	}
	if len(resp.Failures) > 0 {
		ux.Warning(fmt.Sprintf("%d device(s) could not be analyzed", len(resp.Failures)))
		for deviceID, reason := range resp.Failures {
			ux.DeviceStatus(deviceID, ux.IconPending, reason)
		}
	}

	os.Exit(healthExitCode(resp))
}

// healthExitCode maps an analysis outcome onto CLI exit codes so scripts
// can alert on degraded fleets without parsing output.
func healthExitCode(resp datatypes.HealthAnalysisResponse) int {
	for _, report := range resp.Reports {
		if report.Result.Status != decision.SeverityHealthy {
			return CLIExitFindings
		}
	}
	if len(resp.Failures) > 0 {
		return CLIExitFindings
	}
	return CLIExitSuccess
}

func runRouteCommand(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")

	var resp datatypes.RouteResponse
	if err := postJSON("/v1/analysis/route", map[string]any{"query": query}, &resp); err != nil {
		fail("Query routing failed", err)
	}

	if jsonOutput {
		if err := OutputJSON(resp, compactJSON); err != nil {
			fail("Failed to encode output", err)
		}
		return
	}

	dec := resp.Decision
	if dec == nil {
		ux.Error("assistant returned no routing decision")
		os.Exit(CLIExitError)
	}

	tool := dec.ToolRecommendation
	if tool == "" {
		tool = "(no tool recommended)"
	}
	fmt.Printf("%s %s\n", ux.Styles.Muted.Render("Tool:"), ux.Styles.Highlight.Render(tool))
	fmt.Printf("%s %s\n", ux.Styles.Muted.Render("Analysis type:"), string(dec.AnalysisType))
	fmt.Printf("%s %s\n", ux.Styles.Muted.Render("Confidence:"),
		confidenceStyle(dec.ConfidenceLevel)(string(dec.ConfidenceLevel)))
	if resp.Explanation != "" {
		fmt.Println()
		ux.Box("Reasoning", resp.Explanation)
	} else if dec.Reasoning != "" {
		fmt.Println()
		ux.Box("Reasoning", dec.Reasoning)
	}
}
