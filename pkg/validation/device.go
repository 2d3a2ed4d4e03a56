// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries, file paths, or subprocess calls. Using these validators
// prevents injection attacks (Flux injection, command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// deviceIDPattern matches valid network device identifiers.
// Allows: uppercase letters, digits, hyphens and underscores between them.
// Covers names like OLT17PROP01, OLT99AB-02, SW_CORE_01.
// Max length: 32 characters.
var deviceIDPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_\-]{0,31}$`)

// regionPattern matches region codes like HOBO, ANTW, GENT-NORTH.
var regionPattern = regexp.MustCompile(`^[A-Z][A-Z0-9\-]{1,15}$`)

// ValidateDeviceID validates a device identifier to prevent query injection.
//
// Valid device IDs:
//   - 1-32 characters
//   - Uppercase letters A-Z
//   - Digits 0-9
//   - Hyphens (-) and underscores (_) after the first character
//
// Returns an error if the device ID is invalid.
//
// Example:
//
//	if err := validation.ValidateDeviceID(deviceID); err != nil {
//	    return nil, fmt.Errorf("invalid device id: %w", err)
//	}
//	// Safe to use in Flux query or URL path
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device id cannot be empty")
	}

	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("invalid device id format: %q (must be 1-32 uppercase alphanumeric chars, hyphens, or underscores)", deviceID)
	}

	return nil
}

// ValidateDeviceIDs validates multiple device identifiers.
// Returns an error listing all invalid IDs if any fail validation.
func ValidateDeviceIDs(deviceIDs []string) error {
	var invalid []string
	for _, id := range deviceIDs {
		if err := ValidateDeviceID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid device ids: %v", invalid)
	}
	return nil
}

// SanitizeDeviceID normalizes and validates a device identifier.
// Returns the uppercase ID if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	safeID, err := validation.SanitizeDeviceID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is uppercase and validated
func SanitizeDeviceID(deviceID string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(deviceID))
	if err := ValidateDeviceID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// SanitizeRegion normalizes and validates a region code.
// Returns the uppercase region if valid, or an error if invalid.
func SanitizeRegion(region string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(region))
	if normalized == "" {
		return "", fmt.Errorf("region cannot be empty")
	}
	if !regionPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid region format: %q (must be 2-16 uppercase alphanumeric chars or hyphens)", region)
	}
	return normalized, nil
}
