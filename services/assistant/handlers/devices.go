// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianNetOps/pkg/validation"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/AleutianAI/AleutianNetOps/services/inventory"
)

// ListNetworkDevices handles device listing requests.
//
// GET /v1/devices with optional region, device_type, and environment
// query parameters. Empty parameters match everything.
func ListNetworkDevices(client *inventory.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointDevices
		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(endpoint, success)
			}
		}()

		filter := inventory.DeviceFilter{
			DeviceType:  c.Query("device_type"),
			Environment: c.Query("environment"),
		}
		if region := c.Query("region"); region != "" {
			sanitized, err := validation.SanitizeRegion(region)
			if err != nil {
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(endpoint, observability.ErrorCodeValidation)
				}
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			filter.Region = sanitized
		}

		devices, err := client.ListDevices(c.Request.Context(), filter)
		if err != nil {
			slog.Error("Failed to list devices", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeInventory)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"devices": devices,
			"count":   len(devices),
		})
		success = true
	}
}

// GetDeviceDetails handles single-device detail requests.
//
// GET /v1/devices/:deviceId. When an engine is provided the response
// includes a fresh health classification alongside the inventory record.
func GetDeviceDetails(client *inventory.Client, engine *decision.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointDevices
		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(endpoint, success)
			}
		}()

		deviceID, err := validation.SanitizeDeviceID(c.Param("deviceId"))
		if err != nil {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeValidation)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		device, err := client.GetDevice(c.Request.Context(), deviceID)
		if err != nil {
			if errors.Is(err, inventory.ErrDeviceNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
				return
			}
			slog.Error("Failed to fetch device", "device_id", deviceID, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeInventory)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{"device": device}
		if engine != nil {
			if result, cerr := engine.ClassifyHealth(c.Request.Context(), device, decision.DefaultHealthDomain); cerr == nil {
				resp["health"] = result
				if m := observability.DefaultMetrics; m != nil {
					m.RecordDecision(decision.DefaultHealthDomain, result.Status, result.Score)
				}
			}
		}

		c.JSON(http.StatusOK, resp)
		success = true
	}
}
