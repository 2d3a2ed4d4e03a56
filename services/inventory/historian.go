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
	"fmt"
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianNetOps/pkg/validation"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

// healthMeasurement is the InfluxDB measurement for device health samples.
const healthMeasurement = "device_health"

// HistorianConfig carries the InfluxDB connection settings, read from the
// INFLUXDB_* environment variables at bootstrap.
type HistorianConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// HistorianConfigFromEnv reads INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG
// and INFLUXDB_BUCKET. The token has no default; callers decide whether a
// missing token is fatal or switches the historian off.
func HistorianConfigFromEnv() HistorianConfig {
	cfg := HistorianConfig{
		URL:    os.Getenv("INFLUXDB_URL"),
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    os.Getenv("INFLUXDB_ORG"),
		Bucket: os.Getenv("INFLUXDB_BUCKET"),
	}
	if cfg.URL == "" {
		cfg.URL = "http://influxdb:8086"
	}
	if cfg.Org == "" {
		cfg.Org = "aleutian-netops"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "device-health"
	}
	return cfg
}

// WaitForInflux polls the InfluxDB health endpoint until it passes or the
// attempts run out. Bootstrap calls this before taking traffic.
func WaitForInflux(ctx context.Context, client influxdb2.Client, attempts int) error {
	for i := 0; i < attempts; i++ {
		health, err := client.Health(ctx)
		if err == nil && health.Status == "pass" {
			return nil
		}

		var errMsg string
		if err != nil {
			errMsg = err.Error()
		} else if health != nil && health.Message != nil {
			errMsg = *health.Message
		}
		slog.Warn("InfluxDB not ready, retrying...", "attempt", i+1, "error", errMsg)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("InfluxDB not healthy after %d attempts", attempts)
}

// Historian records health classifications as time series and answers
// history queries about them. The API fields are interfaces so tests can
// inject mocks, same as the HTTP client.
type Historian struct {
	WriteAPI api.WriteAPIBlocking
	QueryAPI api.QueryAPI
	Bucket   string
}

// NewHistorian wires a historian onto an existing InfluxDB client.
func NewHistorian(client influxdb2.Client, cfg HistorianConfig) *Historian {
	return &Historian{
		WriteAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		QueryAPI: client.QueryAPI(cfg.Org),
		Bucket:   cfg.Bucket,
	}
}

// WriteHealthSample records one classification outcome for a device.
// Tags identify the device, fields carry the outcome, so per-device
// series stay low-cardinality however often status flips.
func (h *Historian) WriteHealthSample(ctx context.Context, device *Device, result *decision.DecisionResult) error {
	if device == nil || result == nil {
		return fmt.Errorf("historian needs both a device and a result")
	}

	point := influxdb2.NewPoint(
		healthMeasurement,
		map[string]string{
			"device_id":   device.DeviceID,
			"region":      device.Region,
			"device_type": device.DeviceType,
		},
		map[string]interface{}{
			"score":               result.Score,
			"status":              string(result.Status),
			"risk":                string(result.Risk),
			"service_count":       device.ServiceCount,
			"bandwidth_gbps":      device.BandwidthGbps,
			"utilization_percent": device.UtilizationPercent,
		},
		time.Now(),
	)
	if err := h.WriteAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write health sample: %w", err)
	}
	return nil
}

// HealthSample is one historical classification row.
type HealthSample struct {
	Time               string  `json:"time"`
	Score              float64 `json:"health_score"`
	Status             string  `json:"status"`
	Risk               string  `json:"risk_level"`
	ServiceCount       int64   `json:"service_count"`
	BandwidthGbps      float64 `json:"bandwidth_gbps"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// HealthHistory returns the recorded samples for a device over the last
// N days, oldest first. The device ID is sanitized before it is spliced
// into the Flux query to prevent injection.
func (h *Historian) HealthHistory(ctx context.Context, deviceID string, days int) ([]HealthSample, error) {
	sanitized, err := validation.SanitizeDeviceID(deviceID)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 7
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -%dd)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.device_id == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, h.Bucket, days, healthMeasurement, sanitized)

	result, err := h.QueryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("health history query failed: %w", err)
	}

	// Guard against nil result (can happen with empty query results)
	if result == nil {
		return []HealthSample{}, nil
	}

	var samples []HealthSample
	for result.Next() {
		record := result.Record()

		sample := HealthSample{
			Time: record.Time().Format("2006-01-02T15:04:05Z"),
		}
		if val, ok := record.ValueByKey("score").(float64); ok {
			sample.Score = val
		}
		if val, ok := record.ValueByKey("status").(string); ok {
			sample.Status = val
		}
		if val, ok := record.ValueByKey("risk").(string); ok {
			sample.Risk = val
		}
		if val, ok := record.ValueByKey("service_count").(int64); ok {
			sample.ServiceCount = val
		}
		if val, ok := record.ValueByKey("bandwidth_gbps").(float64); ok {
			sample.BandwidthGbps = val
		}
		if val, ok := record.ValueByKey("utilization_percent").(float64); ok {
			sample.UtilizationPercent = val
		}

		samples = append(samples, sample)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("health history iteration: %w", result.Err())
	}

	return samples, nil
}
