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
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianNetOps/pkg/ux"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
)

// deviceListResult is the /v1/devices response body.
type deviceListResult struct {
	Devices []inventory.Device `json:"devices"`
	Count   int                `json:"count"`
}

func runDevicesCommand(cmd *cobra.Command, args []string) {
	params := url.Values{}
	if deviceRegion != "" {
		params.Set("region", deviceRegion)
	}
	if deviceType != "" {
		params.Set("device_type", deviceType)
	}
	if deviceEnv != "" {
		params.Set("environment", deviceEnv)
	}
	path := "/v1/devices"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp deviceListResult
	if err := getJSON(path, &resp); err != nil {
		fail("Device listing failed", err)
	}

	if jsonOutput {
		if err := OutputJSON(resp, compactJSON); err != nil {
			fail("Failed to encode output", err)
		}
		return
	}

	if resp.Count == 0 {
		ux.Info("No devices matched the filter.")
		return
	}

	fmt.Printf("%-16s %-6s %-8s %-12s %9s %10s\n",
		"DEVICE", "TYPE", "REGION", "ENVIRONMENT", "SERVICES", "BANDWIDTH")
	for _, device := range resp.Devices {
		fmt.Printf("%-16s %-6s %-8s %-12s %9d %7.0f Gb\n",
			device.DeviceID,
			device.DeviceType,
			device.Region,
			device.Environment,
			device.ServiceCount,
			device.BandwidthGbps,
		)
	}
	ux.Muted(fmt.Sprintf("%d device(s)", resp.Count))
}

// historyResult is the /v1/history/:deviceId response body. Entries stay
// raw JSON: the rendered report already carries the human view and the
// JSON mode passes the server payload through untouched.
type historyResult struct {
	DeviceID string           `json:"device_id"`
	Entries  []map[string]any `json:"entries"`
	Count    int              `json:"count"`
	Report   string           `json:"report,omitempty"`
}

func runHistoryCommand(cmd *cobra.Command, args []string) {
	deviceID := args[0]

	path := fmt.Sprintf("/v1/history/%s?limit=%d", url.PathEscape(deviceID), historyLimit)
	var resp historyResult
	if err := getJSON(path, &resp); err != nil {
		fail("History lookup failed", err)
	}

	if jsonOutput {
		if err := OutputJSON(resp, compactJSON); err != nil {
			fail("Failed to encode output", err)
		}
		return
	}

	if resp.Count == 0 {
		ux.Info(fmt.Sprintf("No recorded decisions for %s.", deviceID))
		os.Exit(CLIExitSuccess)
	}

	if resp.Report != "" {
		fmt.Println(resp.Report)
	}
	ux.Muted(fmt.Sprintf("%d decision(s) for %s", resp.Count, resp.DeviceID))
}
