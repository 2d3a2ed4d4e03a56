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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	DefaultAssistantHost = "localhost"
	DefaultAssistantPort = 12310

	// defaultRequestTimeout bounds one CLI request end to end. Health
	// analysis fans out to the inventory and may take a while for large
	// device lists.
	defaultRequestTimeout = 120 * time.Second
)

var apiHTTPClient = &http.Client{Timeout: defaultRequestTimeout}

// getAssistantBaseURL resolves the assistant service address.
func getAssistantBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := strings.Trim(os.Getenv("NETOPS_ASSISTANT_URL"), "\"' "); url != "" {
		return strings.TrimRight(url, "/")
	}
	// 2. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultAssistantHost, DefaultAssistantPort)
}

// apiError is the JSON error body the assistant returns on failures.
type apiError struct {
	Error string `json:"error"`
}

// postJSON sends a JSON body to the assistant and decodes the response
// into out. A non-2xx status is returned as an error carrying the
// server's error message when one is present.
func postJSON(path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, getAssistantBaseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	applyAuthHeader(req)

	return doJSON(req, out)
}

// getJSON fetches a JSON resource from the assistant into out.
func getJSON(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, getAssistantBaseURL()+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	applyAuthHeader(req)

	return doJSON(req, out)
}

func doJSON(req *http.Request, out any) error {
	resp, err := apiHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("assistant unreachable at %s: %w", getAssistantBaseURL(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return fmt.Errorf("assistant returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("assistant returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// applyAuthHeader attaches the bearer token when NETOPS_API_TOKEN is set.
// Deployments without an auth provider ignore the header.
func applyAuthHeader(req *http.Request) {
	if token := os.Getenv("NETOPS_API_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
