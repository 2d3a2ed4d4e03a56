// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mcptools exposes the decision engine over the Model Context
// Protocol so agent frameworks can call the same operations the HTTP API
// serves. Tool names match the engine's routing recommendations, so a
// route_query response can be followed directly by the recommended call.
package mcptools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/AleutianAI/AleutianNetOps/pkg/validation"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/format"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
)

// Server wraps the decision engine and inventory client behind MCP tools.
type Server struct {
	engine    *decision.Engine
	inventory *inventory.Client
	formatter *format.MarkdownFormatter
	mcp       *server.MCPServer
}

// NewServer creates an MCP server over the given engine. The inventory
// client is optional; device tools report a tool error when it is absent.
func NewServer(engine *decision.Engine, inv *inventory.Client) *Server {
	if engine == nil {
		panic("mcptools.NewServer: engine is required")
	}

	s := &Server{
		engine:    engine,
		inventory: inv,
		formatter: format.NewMarkdownFormatter(),
	}

	s.mcp = server.NewMCPServer(
		"aleutian-netops",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools()

	return s
}

// registerTools registers the decision and inventory tools.
func (s *Server) registerTools() {
	healthTool := mcp.NewTool("analyze_device_health",
		mcp.WithDescription("Classify the operational health of one or more network devices"),
		mcp.WithString("device_ids",
			mcp.Required(),
			mcp.Description("Comma-separated device IDs, e.g. OLT17PROP01,OLT18PROP02"),
		),
		mcp.WithString("domain",
			mcp.Description("Decision domain for rule selection (default network_health)"),
		),
	)
	s.mcp.AddTool(healthTool, s.handleAnalyzeDeviceHealth)

	routeTool := mcp.NewTool("route_query",
		mcp.WithDescription("Classify an operator question and recommend the tool that should answer it"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The operator question to route"),
		),
	)
	s.mcp.AddTool(routeTool, s.handleRouteQuery)

	listTool := mcp.NewTool(decision.ToolListNetworkDevices,
		mcp.WithDescription("List network devices from live inventory, optionally filtered"),
		mcp.WithString("region",
			mcp.Description("Region code filter, e.g. HOBO"),
		),
		mcp.WithString("device_type",
			mcp.Description("Device type filter, e.g. FTTH OLT"),
		),
		mcp.WithString("environment",
			mcp.Description("Environment filter: PRODUCTION, UAT, or LAB"),
		),
	)
	s.mcp.AddTool(listTool, s.handleListNetworkDevices)

	detailsTool := mcp.NewTool(decision.ToolGetDeviceDetails,
		mcp.WithDescription("Fetch one device's inventory record plus a fresh health classification"),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("The device ID to look up, e.g. OLT17PROP01"),
		),
	)
	s.mcp.AddTool(detailsTool, s.handleGetDeviceDetails)

	impactTool := mcp.NewTool(decision.ToolAnalyzeNetworkImpact,
		mcp.WithDescription("Analyze the service impact of degradation across a set of devices"),
		mcp.WithString("device_ids",
			mcp.Required(),
			mcp.Description("Comma-separated device IDs to assess together"),
		),
	)
	s.mcp.AddTool(impactTool, s.handleAnalyzeNetworkImpact)
}

// handleAnalyzeDeviceHealth handles analyze_device_health tool calls.
func (s *Server) handleAnalyzeDeviceHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawIDs, err := request.RequireString("device_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	domain := request.GetString("domain", decision.DefaultHealthDomain)

	ids, err := parseDeviceIDs(rawIDs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	health, _, err := s.classifyFleet(ctx, ids, domain)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.formatter.Format(health)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to render report: %v", err)), nil
	}
	return mcp.NewToolResultText(out), nil
}

// handleRouteQuery handles route_query tool calls.
func (s *Server) handleRouteQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}

	dec, err := s.engine.RouteQuery(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to route query: %v", err)), nil
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRouting(dec.ConfidenceLevel)
	}

	out, err := s.formatter.Format(dec)
	if err != nil {
		return mcp.NewToolResultText(dec.Reasoning), nil
	}
	return mcp.NewToolResultText(out), nil
}

// handleListNetworkDevices handles list_network_devices tool calls.
func (s *Server) handleListNetworkDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.inventory == nil {
		return mcp.NewToolResultError("inventory not configured"), nil
	}

	filter := inventory.DeviceFilter{
		DeviceType:  request.GetString("device_type", ""),
		Environment: request.GetString("environment", ""),
	}
	if region := request.GetString("region", ""); region != "" {
		sanitized, err := validation.SanitizeRegion(region)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Region = sanitized
	}

	devices, err := s.inventory.ListDevices(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list devices: %v", err)), nil
	}
	if len(devices) == 0 {
		return mcp.NewToolResultText("No devices matched the filter"), nil
	}

	refs := make([]*inventory.Device, len(devices))
	for i := range devices {
		refs[i] = &devices[i]
	}
	out, err := s.formatter.Format(refs)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to render listing: %v", err)), nil
	}
	return mcp.NewToolResultText(out), nil
}

// handleGetDeviceDetails handles get_device_details tool calls.
func (s *Server) handleGetDeviceDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.inventory == nil {
		return mcp.NewToolResultError("inventory not configured"), nil
	}

	rawID, err := request.RequireString("device_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deviceID, err := validation.SanitizeDeviceID(rawID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	device, err := s.inventory.GetDevice(ctx, deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get device %s: %v", deviceID, err)), nil
	}

	var b strings.Builder
	if deviceMD, fmtErr := s.formatter.Format(device); fmtErr == nil {
		b.WriteString(deviceMD)
	}

	result, err := s.engine.ClassifyHealth(ctx, device, decision.DefaultHealthDomain)
	if err == nil {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordDecision(decision.DefaultHealthDomain, result.Status, result.Score)
		}
		health := datatypes.NewHealthAnalysisResponse("")
		health.Reports = []datatypes.DeviceHealthReport{{DeviceID: deviceID, Result: result}}
		if healthMD, fmtErr := s.formatter.Format(health); fmtErr == nil {
			b.WriteString("\n")
			b.WriteString(healthMD)
		}
	}

	return mcp.NewToolResultText(b.String()), nil
}

// handleAnalyzeNetworkImpact handles analyze_network_impact tool calls.
//
// The report leads with the aggregate blast radius: how many of the named
// devices are degraded and how many subscriber services ride on them.
func (s *Server) handleAnalyzeNetworkImpact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawIDs, err := request.RequireString("device_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids, err := parseDeviceIDs(rawIDs)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	health, devices, err := s.classifyFleet(ctx, ids, decision.DefaultHealthDomain)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	degraded := 0
	servicesAtRisk := 0
	for _, report := range health.Reports {
		if report.Result.Status == decision.SeverityHealthy {
			continue
		}
		degraded++
		if device, ok := devices[report.DeviceID]; ok {
			servicesAtRisk += device.ServiceCount
		}
	}

	var b strings.Builder
	b.WriteString("## Network Impact\n\n")
	fmt.Fprintf(&b, "- Devices assessed: %d\n", len(health.Reports))
	fmt.Fprintf(&b, "- Devices degraded: %d\n", degraded)
	fmt.Fprintf(&b, "- Services at risk: %d\n", servicesAtRisk)
	if len(health.Failures) > 0 {
		fmt.Fprintf(&b, "- Lookup failures: %d\n", len(health.Failures))
	}
	b.WriteString("\n")

	if reportMD, fmtErr := s.formatter.Format(health); fmtErr == nil {
		b.WriteString(reportMD)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// classifyFleet fetches and classifies a set of devices, worst first.
func (s *Server) classifyFleet(ctx context.Context, ids []string,
	domain string) (*datatypes.HealthAnalysisResponse, map[string]*inventory.Device, error) {

	if s.inventory == nil {
		return nil, nil, fmt.Errorf("inventory not configured")
	}

	devices, failures := s.inventory.FetchDevices(ctx, ids)

	health := datatypes.NewHealthAnalysisResponse("")
	for _, id := range ids {
		device, ok := devices[id]
		if !ok {
			continue
		}
		result, err := s.engine.ClassifyHealth(ctx, device, domain)
		if err != nil {
			failures[id] = "Error: " + err.Error()
			continue
		}
		if m := observability.DefaultMetrics; m != nil {
			m.RecordDecision(domain, result.Status, result.Score)
		}
		health.Reports = append(health.Reports, datatypes.DeviceHealthReport{DeviceID: id, Result: result})
	}
	if len(failures) > 0 {
		health.Failures = failures
	}
	if len(health.Reports) == 0 && len(failures) > 0 {
		return nil, nil, fmt.Errorf("no devices resolved: %d lookup failures", len(failures))
	}

	sort.SliceStable(health.Reports, func(i, j int) bool {
		ri := health.Reports[i].Result.Status.Rank()
		rj := health.Reports[j].Result.Status.Rank()
		if ri != rj {
			return ri < rj
		}
		return health.Reports[i].DeviceID < health.Reports[j].DeviceID
	})

	return health, devices, nil
}

// parseDeviceIDs splits and sanitizes a comma-separated ID list.
func parseDeviceIDs(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	seen := make(map[string]bool)
	var ids []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := validation.SanitizeDeviceID(part)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID %q: %w", part, err)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("device_ids must name at least one device")
	}
	if len(ids) > datatypes.MaxDevicesPerAnalysis {
		return nil, fmt.Errorf("too many devices: %d exceeds the limit of %d",
			len(ids), datatypes.MaxDevicesPerAnalysis)
	}
	return ids, nil
}

// Serve starts the MCP server on stdio transport.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
