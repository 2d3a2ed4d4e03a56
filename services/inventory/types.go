// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inventory talks to the live device inventory API and the
// utilization historian. It is the data side of health analysis: the
// decision engine reads devices through the FieldAccessor it implements
// here and never knows where the fields came from.
package inventory

import (
	"net/url"
	"strings"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

// Device types as the inventory API reports them. The decision engine
// normalizes these to rule-set entity types (FTTH OLT -> ftth_olt).
const (
	DeviceTypeOLT          = "FTTH OLT"
	DeviceTypeONT          = "FTTH ONT"
	DeviceTypeCoreRouter   = "Core Router"
	DeviceTypeAccessSwitch = "Access Switch"
)

// Deployment environments recognized by rule-set overrides.
const (
	EnvProduction = "PRODUCTION"
	EnvUAT        = "UAT"
	EnvLab        = "LAB"
)

// Device is one inventory record. The JSON shape matches the inventory
// API's device payload.
type Device struct {
	DeviceID           string         `json:"device_id"`
	DeviceType         string         `json:"device_type"`
	Region             string         `json:"region"`
	Environment        string         `json:"environment"`
	ServiceCount       int            `json:"service_count"`
	BandwidthGbps      float64        `json:"bandwidth_gbps"`
	ManagedByInmanta   bool           `json:"managed_by_inmanta"`
	CompleteConfig     bool           `json:"complete_config"`
	UtilizationPercent float64        `json:"utilization_percent"`
	Config             map[string]any `json:"config,omitempty"`
}

var _ decision.FieldAccessor = (*Device)(nil)

// Get resolves a rule-set field path against the device. Numeric and
// boolean zero values are real data and always resolve; empty label
// fields read as absent so the engine applies its typed defaults.
// Paths under "config." descend into the free-form config document.
func (d *Device) Get(path string) (decision.Value, bool) {
	if d == nil {
		return decision.Absent, false
	}
	switch path {
	case "device_id":
		return labelValue(d.DeviceID)
	case "device_type":
		return labelValue(d.DeviceType)
	case "region":
		return labelValue(d.Region)
	case "environment":
		return labelValue(d.Environment)
	case "service_count":
		return decision.Number(float64(d.ServiceCount)), true
	case "bandwidth_gbps":
		return decision.Number(d.BandwidthGbps), true
	case "managed_by_inmanta":
		return decision.Bool(d.ManagedByInmanta), true
	case "complete_config":
		return decision.Bool(d.CompleteConfig), true
	case "utilization_percent":
		return decision.Number(d.UtilizationPercent), true
	}
	if rest, ok := strings.CutPrefix(path, "config."); ok {
		return decision.MapAccessor(d.Config).Get(rest)
	}
	return decision.Absent, false
}

func labelValue(s string) (decision.Value, bool) {
	if s == "" {
		return decision.Absent, false
	}
	return decision.String(s), true
}

// DeviceFilter narrows inventory listings. Empty fields match everything.
type DeviceFilter struct {
	Region      string `json:"region,omitempty"`
	DeviceType  string `json:"device_type,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// Matches reports whether the device passes the filter. Comparisons are
// case-insensitive because operators type region codes both ways.
func (f DeviceFilter) Matches(d *Device) bool {
	if d == nil {
		return false
	}
	if f.Region != "" && !strings.EqualFold(f.Region, d.Region) {
		return false
	}
	if f.DeviceType != "" && !strings.EqualFold(f.DeviceType, d.DeviceType) {
		return false
	}
	if f.Environment != "" && !strings.EqualFold(f.Environment, d.Environment) {
		return false
	}
	return true
}

// QueryValues encodes the filter as inventory API query parameters.
func (f DeviceFilter) QueryValues() url.Values {
	values := url.Values{}
	if f.Region != "" {
		values.Set("region", f.Region)
	}
	if f.DeviceType != "" {
		values.Set("device_type", f.DeviceType)
	}
	if f.Environment != "" {
		values.Set("environment", f.Environment)
	}
	return values
}
