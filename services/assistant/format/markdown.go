// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format renders engine output as Markdown for chat-style responses.
//
// Handlers and the MCP tools embed the rendered text in answers returned to
// operators, so the output favors tables and short labeled lines over prose.
package format

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/history"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
)

// TokenRatio maps tokenizer names to characters per token.
var TokenRatio = map[string]float64{
	"gpt4":    4.0,
	"claude":  3.5,
	"llama":   4.5,
	"default": 4.0,
}

// statusEmoji maps severity tiers to table markers.
var statusEmoji = map[decision.SeverityTier]string{
	decision.SeverityCritical: "🔴",
	decision.SeverityWarning:  "🟡",
	decision.SeverityDegraded: "🟠",
	decision.SeverityHealthy:  "🟢",
}

// confidenceEmoji maps routing confidence to markers.
var confidenceEmoji = map[decision.ConfidenceLevel]string{
	decision.ConfidenceHigh:   "🟢",
	decision.ConfidenceMedium: "🟡",
	decision.ConfidenceLow:    "🔴",
}

// MarkdownFormatter formats assistant results as Markdown tables and lists.
type MarkdownFormatter struct {
	maxRows int
}

// NewMarkdownFormatter creates a new Markdown formatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{maxRows: 100}
}

// SetMaxRows sets the maximum number of table rows.
func (f *MarkdownFormatter) SetMaxRows(max int) {
	f.maxRows = max
}

// Format converts the result to a Markdown string.
func (f *MarkdownFormatter) Format(result interface{}) (string, error) {
	var sb strings.Builder
	if err := f.FormatStreaming(result, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// TokenEstimate estimates the number of tokens in the rendered output.
// tokenizer can be "gpt4", "claude", "llama", or empty for default.
func (f *MarkdownFormatter) TokenEstimate(result interface{}, tokenizer ...string) int {
	output, err := f.Format(result)
	if err != nil {
		return 0
	}

	ratio := TokenRatio["default"]
	if len(tokenizer) > 0 {
		if r, ok := TokenRatio[tokenizer[0]]; ok {
			ratio = r
		}
	}

	return int(float64(len(output)) / ratio)
}

// FormatStreaming writes Markdown to a writer.
func (f *MarkdownFormatter) FormatStreaming(result interface{}, w io.Writer) error {
	switch r := result.(type) {
	case *datatypes.HealthAnalysisResponse:
		return f.formatHealthAnalysis(r, w)
	case datatypes.HealthAnalysisResponse:
		return f.formatHealthAnalysis(&r, w)
	case *decision.RoutingDecision:
		return f.formatRoutingDecision(r, w)
	case decision.RoutingDecision:
		return f.formatRoutingDecision(&r, w)
	case []*inventory.Device:
		return f.formatDeviceListing(r, w)
	case *inventory.Device:
		return f.formatDeviceDetails(r, w)
	case []history.Entry:
		return f.formatHistory(r, w)
	default:
		return errors.New("unsupported result type for markdown format")
	}
}

// formatHealthAnalysis formats a health analysis response as Markdown.
func (f *MarkdownFormatter) formatHealthAnalysis(r *datatypes.HealthAnalysisResponse, w io.Writer) error {
	fmt.Fprintf(w, "## Device Health Report\n\n")

	if len(r.Reports) == 0 {
		fmt.Fprintln(w, "*No devices analyzed.*")
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "**%s analyzed: %s.**\n\n", countNoun(len(r.Reports), "device"), tierTally(r.Reports))

		fmt.Fprintln(w, "| Device | Status | Score | Risk | Top Recommendation |")
		fmt.Fprintln(w, "|--------|--------|-------|------|--------------------|")

		rows := r.Reports
		truncated := false
		if len(rows) > f.maxRows {
			rows = rows[:f.maxRows]
			truncated = true
		}

		for _, report := range rows {
			if report.Result == nil {
				continue
			}
			rec := "-"
			if len(report.Result.Recommendations) > 0 {
				rec = clipCell(report.Result.Recommendations[0], 60)
			}
			fmt.Fprintf(w, "| %s | %s %s | %.1f | %s | %s |\n",
				report.DeviceID,
				marker(statusEmoji[report.Result.Status]),
				report.Result.Status,
				report.Result.Score,
				report.Result.Risk,
				rec)
		}
		fmt.Fprintln(w)

		if truncated {
			fmt.Fprintf(w, "*Showing %d of %d devices. Use the JSON response for complete data.*\n\n",
				f.maxRows, len(r.Reports))
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "### Failures")
		fmt.Fprintln(w)

		devices := make([]string, 0, len(r.Failures))
		for device := range r.Failures {
			devices = append(devices, device)
		}
		sort.Strings(devices)

		for _, device := range devices {
			fmt.Fprintf(w, "- **%s:** %s\n", device, r.Failures[device])
		}
		fmt.Fprintln(w)
	}

	return nil
}

// formatRoutingDecision formats a routing decision as Markdown.
func (f *MarkdownFormatter) formatRoutingDecision(r *decision.RoutingDecision, w io.Writer) error {
	fmt.Fprintf(w, "## Query Routing\n\n")

	fmt.Fprintf(w, "- **Confidence:** %s %s\n", marker(confidenceEmoji[r.ConfidenceLevel]), r.ConfidenceLevel)
	fmt.Fprintf(w, "- **Analysis type:** %s\n", r.AnalysisType)

	tool := "none"
	if r.ToolRecommendation != "" {
		tool = "`" + r.ToolRecommendation + "`"
	}
	fmt.Fprintf(w, "- **Recommended tool:** %s\n", tool)
	fmt.Fprintln(w)

	if r.Reasoning != "" {
		fmt.Fprintf(w, "**Reasoning:** %s\n\n", r.Reasoning)
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintln(w, "**Recommendations:**")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(w, "- %s\n", rec)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// formatDeviceListing formats a device list as a Markdown table.
func (f *MarkdownFormatter) formatDeviceListing(devices []*inventory.Device, w io.Writer) error {
	fmt.Fprintf(w, "## Network Devices (%d)\n\n", len(devices))

	if len(devices) == 0 {
		fmt.Fprintln(w, "*No devices matched.*")
		fmt.Fprintln(w)
		return nil
	}

	fmt.Fprintln(w, "| Device | Type | Region | Services | Bandwidth | Utilization |")
	fmt.Fprintln(w, "|--------|------|--------|----------|-----------|-------------|")

	rows := devices
	truncated := false
	if len(rows) > f.maxRows {
		rows = rows[:f.maxRows]
		truncated = true
	}

	for _, d := range rows {
		if d == nil {
			continue
		}
		fmt.Fprintf(w, "| %s | %s | %s | %d | %.1f Gbps | %.1f%% |\n",
			d.DeviceID, d.DeviceType, d.Region, d.ServiceCount, d.BandwidthGbps, d.UtilizationPercent)
	}
	fmt.Fprintln(w)

	if truncated {
		fmt.Fprintf(w, "*Showing %d of %d devices. Use the JSON response for complete data.*\n\n",
			f.maxRows, len(devices))
	}

	return nil
}

// formatDeviceDetails formats a single device as a Markdown list.
func (f *MarkdownFormatter) formatDeviceDetails(d *inventory.Device, w io.Writer) error {
	if d == nil {
		return errors.New("device must not be nil")
	}

	fmt.Fprintf(w, "## Device: %s\n\n", d.DeviceID)

	fmt.Fprintf(w, "- **Type:** %s\n", d.DeviceType)
	fmt.Fprintf(w, "- **Region:** %s\n", d.Region)
	fmt.Fprintf(w, "- **Environment:** %s\n", d.Environment)
	fmt.Fprintf(w, "- **Services:** %d\n", d.ServiceCount)
	fmt.Fprintf(w, "- **Bandwidth:** %.1f Gbps\n", d.BandwidthGbps)
	fmt.Fprintf(w, "- **Utilization:** %.1f%%\n", d.UtilizationPercent)
	fmt.Fprintf(w, "- **Managed by Inmanta:** %s\n", yesNo(d.ManagedByInmanta))
	fmt.Fprintf(w, "- **Complete config:** %s\n", yesNo(d.CompleteConfig))
	fmt.Fprintln(w)

	if len(d.Config) > 0 {
		fmt.Fprintln(w, "### Config")
		fmt.Fprintln(w)

		keys := make([]string, 0, len(d.Config))
		for k := range d.Config {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(w, "- **%s:** %v\n", k, d.Config[k])
		}
		fmt.Fprintln(w)
	}

	return nil
}

// formatHistory formats recorded decisions as a Markdown table, newest first.
func (f *MarkdownFormatter) formatHistory(entries []history.Entry, w io.Writer) error {
	if len(entries) == 0 {
		fmt.Fprintf(w, "## Decision History\n\n")
		fmt.Fprintln(w, "*No recorded decisions.*")
		fmt.Fprintln(w)
		return nil
	}

	fmt.Fprintf(w, "## Decision History: %s\n\n", entries[0].DeviceID)

	fmt.Fprintln(w, "| Recorded (UTC) | Status | Score | Risk |")
	fmt.Fprintln(w, "|----------------|--------|-------|------|")

	rows := entries
	truncated := false
	if len(rows) > f.maxRows {
		rows = rows[:f.maxRows]
		truncated = true
	}

	for _, e := range rows {
		if e.Result == nil {
			continue
		}
		recorded := time.UnixMilli(e.RecordedAt).UTC().Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "| %s | %s %s | %.1f | %s |\n",
			recorded,
			marker(statusEmoji[e.Result.Status]),
			e.Result.Status,
			e.Result.Score,
			e.Result.Risk)
	}
	fmt.Fprintln(w)

	if truncated {
		fmt.Fprintf(w, "*Showing %d of %d entries. Use the JSON response for complete data.*\n\n",
			f.maxRows, len(entries))
	}

	return nil
}

// tierTally summarizes report counts per severity in rank order, e.g.
// "1 critical, 2 healthy". Stable output for tests.
func tierTally(reports []datatypes.DeviceHealthReport) string {
	counts := make(map[decision.SeverityTier]int)
	for _, r := range reports {
		if r.Result == nil {
			continue
		}
		counts[r.Result.Status]++
	}

	order := []decision.SeverityTier{
		decision.SeverityCritical,
		decision.SeverityWarning,
		decision.SeverityDegraded,
		decision.SeverityHealthy,
		decision.SeverityUnknown,
	}

	parts := make([]string, 0, len(order))
	for _, tier := range order {
		if n := counts[tier]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, strings.ToLower(string(tier))))
		}
	}
	if len(parts) == 0 {
		return "no results"
	}
	return strings.Join(parts, ", ")
}

// countNoun formats a count with a pluralized noun.
func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// marker returns the emoji or a neutral fallback for unmapped values.
func marker(emoji string) string {
	if emoji == "" {
		return "⚪"
	}
	return emoji
}

// yesNo renders a boolean for list output.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// clipCell shortens long text so table rows stay readable.
func clipCell(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
