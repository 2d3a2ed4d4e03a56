// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianNetOps/pkg/validation"
)

const (
	NUM_WORKERS = 8 // Number of parallel device fetches per bulk request
)

// ErrDeviceNotFound is returned when the inventory API has no record for
// the requested device ID.
var ErrDeviceNotFound = errors.New("device not found in inventory")

// HTTPClient interface allows injecting mock HTTP clients for testing
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig carries the inventory API connection settings.
type ClientConfig struct {
	BaseURL  string
	APIToken string

	// RequestsPerSecond caps the outbound request rate so a bulk health
	// analysis cannot saturate the inventory API. Zero means the default.
	RequestsPerSecond int
}

// ConfigFromEnv reads INVENTORY_API_URL, INVENTORY_API_TOKEN and
// INVENTORY_RATE_LIMIT with the same defaults the compose files assume.
func ConfigFromEnv() ClientConfig {
	cfg := ClientConfig{
		BaseURL:  os.Getenv("INVENTORY_API_URL"),
		APIToken: os.Getenv("INVENTORY_API_TOKEN"),
	}
	// Trim quotes and whitespace in case Podman passes them literally
	cfg.BaseURL = strings.Trim(cfg.BaseURL, "\"' ")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://inventory:8002"
	}
	if raw := os.Getenv("INVENTORY_RATE_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			slog.Warn("Invalid INVENTORY_RATE_LIMIT, using default", "value", raw)
		} else {
			cfg.RequestsPerSecond = n
		}
	}
	return cfg
}

// Client is the inventory API client. All requests pass through a shared
// rate limiter; bulk fetches additionally fan out over a bounded worker
// pool.
type Client struct {
	config     ClientConfig
	HTTPClient HTTPClient
	limiter    *rate.Limiter
}

// NewClient builds an inventory client. A nil httpClient gets a default
// with a 30 second timeout.
func NewClient(cfg ClientConfig, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	return &Client{
		config:     cfg,
		HTTPClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps*2),
	}
}

// get performs one rate-limited GET against the inventory API.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := strings.TrimRight(c.config.BaseURL, "/") + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call inventory API: %w", err)
	}
	return resp, nil
}

// DeviceListResponse is the inventory API's listing payload.
type DeviceListResponse struct {
	Devices []Device `json:"devices"`
	Count   int      `json:"count"`
}

// ListDevices fetches the devices matching the filter. Region codes in
// the filter are normalized before they reach the wire.
func (c *Client) ListDevices(ctx context.Context, filter DeviceFilter) ([]Device, error) {
	if filter.Region != "" {
		region, err := validation.SanitizeRegion(filter.Region)
		if err != nil {
			return nil, fmt.Errorf("invalid region filter: %w", err)
		}
		filter.Region = region
	}

	resp, err := c.get(ctx, "/v1/devices", filter.QueryValues())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inventory API returned status %s", resp.Status)
	}

	var listing DeviceListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("failed to decode device listing: %w", err)
	}
	return listing.Devices, nil
}

// ListDevicesByRegions fans listing requests out per region and merges
// the results sorted by device ID. The first failing region aborts the
// whole listing.
func (c *Client) ListDevicesByRegions(ctx context.Context, regions []string, filter DeviceFilter) ([]Device, error) {
	if len(regions) == 0 {
		return c.ListDevices(ctx, filter)
	}

	g, ctx := errgroup.WithContext(ctx)
	perRegion := make([][]Device, len(regions))
	for i, region := range regions {
		g.Go(func() error {
			regional := filter
			regional.Region = region
			devices, err := c.ListDevices(ctx, regional)
			if err != nil {
				return fmt.Errorf("region %s: %w", region, err)
			}
			perRegion[i] = devices
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []Device
	for _, devices := range perRegion {
		merged = append(merged, devices...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].DeviceID < merged[j].DeviceID
	})
	return merged, nil
}

// GetDevice fetches a single device record. The ID is sanitized first so
// hostile input never reaches the request path.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*Device, error) {
	sanitized, err := validation.SanitizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	resp, err := c.get(ctx, "/v1/devices/"+sanitized, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, sanitized)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inventory API returned status %s", resp.Status)
	}

	var device Device
	if err := json.NewDecoder(resp.Body).Decode(&device); err != nil {
		return nil, fmt.Errorf("failed to decode device: %w", err)
	}
	return &device, nil
}

// FetchDevices resolves many device IDs in parallel. It returns the
// devices it could fetch plus a per-ID failure note for the rest, so a
// partial inventory outage degrades a fleet analysis instead of killing
// it.
func (c *Client) FetchDevices(ctx context.Context, deviceIDs []string) (map[string]*Device, map[string]string) {
	devices := make(map[string]*Device)
	failures := make(map[string]string)
	if len(deviceIDs) == 0 {
		return devices, failures
	}

	var wg sync.WaitGroup
	jobs := make(chan string, len(deviceIDs))
	results := make(chan fetchResult, len(deviceIDs))

	for i := 0; i < NUM_WORKERS; i++ {
		wg.Add(1)
		go c.fetchWorker(ctx, i, &wg, jobs, results)
	}

	for _, id := range deviceIDs {
		jobs <- id
	}
	close(jobs)

	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			failures[res.deviceID] = "Error: " + res.err.Error()
			continue
		}
		devices[res.deviceID] = res.device
	}
	return devices, failures
}

type fetchResult struct {
	deviceID string
	device   *Device
	err      error
}

// fetchWorker processes device IDs from the job channel until it closes.
func (c *Client) fetchWorker(ctx context.Context, id int, wg *sync.WaitGroup,
	jobs <-chan string, results chan<- fetchResult) {

	defer wg.Done()
	for deviceID := range jobs {
		slog.Debug("Worker fetching device", "worker_id", id, "device_id", deviceID)

		device, err := c.GetDevice(ctx, deviceID)
		if err != nil {
			slog.Warn("Failed to fetch device", "worker_id", id, "device_id", deviceID, "error", err)
			results <- fetchResult{deviceID: deviceID, err: err}
			continue
		}
		results <- fetchResult{deviceID: deviceID, device: device}
	}
}
