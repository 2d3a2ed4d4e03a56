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
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianNetOps/pkg/validation"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/format"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/history"
	"github.com/AleutianAI/AleutianNetOps/services/assistant/observability"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

var historyFormatter = format.NewMarkdownFormatter()

// GetDecisionHistory handles decision history requests.
//
// GET /v1/history/:deviceId?limit=N returns the most recent health
// decisions recorded for a device, newest first, plus a rendered
// markdown report.
func GetDecisionHistory(store *history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := observability.EndpointHistory
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

		limit := defaultHistoryLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, perr := strconv.Atoi(raw)
			if perr != nil || parsed < 1 {
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(endpoint, observability.ErrorCodeValidation)
				}
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = parsed
		}
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}

		entries, err := store.Recent(c.Request.Context(), deviceID, limit)
		if err != nil {
			slog.Error("Failed to read decision history", "device_id", deviceID, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeInternal)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := gin.H{
			"device_id": deviceID,
			"entries":   entries,
			"count":     len(entries),
		}
		if report, ferr := historyFormatter.Format(entries); ferr == nil {
			resp["report"] = report
		}

		c.JSON(http.StatusOK, resp)
		success = true
	}
}
