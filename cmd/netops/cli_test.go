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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/AleutianAI/AleutianNetOps/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianNetOps/services/decision"
)

func TestGetAssistantBaseURL_Default(t *testing.T) {
	t.Setenv("NETOPS_ASSISTANT_URL", "")

	url := getAssistantBaseURL()
	expected := fmt.Sprintf("http://%s:%d", DefaultAssistantHost, DefaultAssistantPort)
	if url != expected {
		t.Errorf("Expected %s, got %s", expected, url)
	}
}

func TestGetAssistantBaseURL_EnvOverride(t *testing.T) {
	t.Setenv("NETOPS_ASSISTANT_URL", `"http://assistant.lab:9000/" `)

	url := getAssistantBaseURL()
	if url != "http://assistant.lab:9000" {
		t.Errorf("Expected trimmed URL without trailing slash, got %s", url)
	}
}

func TestHealthExitCode(t *testing.T) {
	healthy := datatypes.HealthAnalysisResponse{
		Reports: []datatypes.DeviceHealthReport{
			{DeviceID: "OLT1", Result: &decision.DecisionResult{Status: decision.SeverityHealthy}},
		},
	}
	if code := healthExitCode(healthy); code != CLIExitSuccess {
		t.Errorf("Healthy fleet: expected exit %d, got %d", CLIExitSuccess, code)
	}

	degraded := datatypes.HealthAnalysisResponse{
		Reports: []datatypes.DeviceHealthReport{
			{DeviceID: "OLT1", Result: &decision.DecisionResult{Status: decision.SeverityHealthy}},
			{DeviceID: "OLT2", Result: &decision.DecisionResult{Status: decision.SeverityCritical}},
		},
	}
	if code := healthExitCode(degraded); code != CLIExitFindings {
		t.Errorf("Degraded fleet: expected exit %d, got %d", CLIExitFindings, code)
	}

	partial := datatypes.HealthAnalysisResponse{
		Reports: []datatypes.DeviceHealthReport{
			{DeviceID: "OLT1", Result: &decision.DecisionResult{Status: decision.SeverityHealthy}},
		},
		Failures: map[string]string{"OLT9": "device not found"},
	}
	if code := healthExitCode(partial); code != CLIExitFindings {
		t.Errorf("Partial failure: expected exit %d, got %d", CLIExitFindings, code)
	}
}

func TestValidatePackFile(t *testing.T) {
	tmpDir := t.TempDir()

	validPath := filepath.Join(tmpDir, "valid.yaml")
	validPack := "name: lab_rules\ndomain: lab_health\nentity_type: olt\n" +
		"summary_fields: [service_count]\nclassification:\n  CRITICAL:\n" +
		"    - field: service_count\n      operator: \"==\"\n      value: 0\n"
	if err := os.WriteFile(validPath, []byte(validPack), 0o644); err != nil {
		t.Fatalf("Failed to write pack: %v", err)
	}

	result, readFailed := validatePackFile(validPath)
	if readFailed {
		t.Fatalf("Unexpected read failure: %s", result.Error)
	}
	if !result.Valid {
		t.Fatalf("Expected valid pack, got error: %s", result.Error)
	}
	if result.Name != "lab_rules" || result.Domain != "lab_health" {
		t.Errorf("Wrong identity: %s/%s", result.Name, result.Domain)
	}
	if result.SummaryFields != 1 || result.ClassifierTiers != 1 {
		t.Errorf("Wrong counts: %d fields, %d tiers",
			result.SummaryFields, result.ClassifierTiers)
	}

	brokenPath := filepath.Join(tmpDir, "broken.yaml")
	if err := os.WriteFile(brokenPath, []byte("name: broken\n"), 0o644); err != nil {
		t.Fatalf("Failed to write pack: %v", err)
	}
	result, readFailed = validatePackFile(brokenPath)
	if readFailed {
		t.Error("Parse failure must not be reported as a read failure")
	}
	if result.Valid {
		t.Error("Expected broken pack to be invalid")
	}
	if result.Error == "" {
		t.Error("Expected a validation error message")
	}

	result, readFailed = validatePackFile(filepath.Join(tmpDir, "missing.yaml"))
	if !readFailed {
		t.Error("Expected missing file to be a read failure")
	}
	if result.Valid {
		t.Error("Missing file must not validate")
	}
}

// TestChatFrameDecoding covers each frame shape the chat socket emits.
func TestChatFrameDecoding(t *testing.T) {
	var frame chatFrame

	hello := `{"action":"session_created","sessionId":"abc-123"}`
	if err := json.Unmarshal([]byte(hello), &frame); err != nil {
		t.Fatalf("Failed to decode hello frame: %v", err)
	}
	if frame.Action != "session_created" || frame.SessionID != "abc-123" {
		t.Errorf("Hello frame decoded wrong: %+v", frame)
	}

	frame = chatFrame{}
	routing := `{"type":"routing","decision":{"confidence_level":"HIGH",` +
		`"tool_recommendation":"analyze_device_health","analysis_type":"device_health",` +
		`"reasoning":"matched device keywords"}}`
	if err := json.Unmarshal([]byte(routing), &frame); err != nil {
		t.Fatalf("Failed to decode routing frame: %v", err)
	}
	if frame.Decision == nil || frame.Decision.ToolRecommendation != "analyze_device_health" {
		t.Errorf("Routing frame decoded wrong: %+v", frame)
	}

	frame = chatFrame{}
	done := `{"type":"done","request_id":"r1","sources":["pack:olt"],"processing_time_ms":12}`
	if err := json.Unmarshal([]byte(done), &frame); err != nil {
		t.Fatalf("Failed to decode done frame: %v", err)
	}
	if frame.Type != "done" || len(frame.Sources) != 1 || frame.ProcessingTimeMs != 12 {
		t.Errorf("Done frame decoded wrong: %+v", frame)
	}
}

func TestPackValidationResultJSON(t *testing.T) {
	result := PackValidationResult{
		File:            "packs/olt.yaml",
		Valid:           true,
		Name:            "olt_rules",
		Domain:          "network_health",
		EntityType:      "ftth_olt",
		SummaryFields:   5,
		ClassifierTiers: 4,
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Failed to marshal PackValidationResult: %v", err)
	}

	var decoded PackValidationResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal PackValidationResult: %v", err)
	}
	if decoded != result {
		t.Errorf("Round trip changed the result: %+v vs %+v", decoded, result)
	}
}
