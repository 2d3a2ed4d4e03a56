// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"strings"
	"testing"

	"github.com/weaviate/weaviate/entities/models"
)

func TestParseGraphQLResponseRuleDocuments(t *testing.T) {
	resp := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"RuleDocument": []interface{}{
					map[string]interface{}{
						"title":            "FTTH OLT health rules",
						"content":          "Rule pack body",
						"domain":           "network_health",
						"device_type":      "ftth_olt",
						"keywords":         []interface{}{"health", "olt"},
						"executable_rules": "name: pack",
						"source":           "packs/olt.yaml",
						"_additional": map[string]interface{}{
							"id":        "1111-2222",
							"certainty": 0.87,
						},
					},
				},
			},
		},
	}

	parsed, err := ParseGraphQLResponse[RuleDocumentQueryResponse](resp)
	if err != nil {
		t.Fatalf("ParseGraphQLResponse: %v", err)
	}
	if len(parsed.Get.RuleDocument) != 1 {
		t.Fatalf("parsed %d documents, want 1", len(parsed.Get.RuleDocument))
	}

	docs := docsFromResults(parsed.Get.RuleDocument)
	doc := docs[0]
	if doc.ID != "1111-2222" || doc.Domain != "network_health" || doc.DeviceType != "ftth_olt" {
		t.Errorf("converted doc = %+v", doc)
	}
	if doc.Certainty < 0.86 || doc.Certainty > 0.88 {
		t.Errorf("Certainty = %v, want ~0.87", doc.Certainty)
	}
	if doc.ExecutableRules != "name: pack" {
		t.Errorf("ExecutableRules = %q", doc.ExecutableRules)
	}
}

func TestParseGraphQLResponseNil(t *testing.T) {
	if _, err := ParseGraphQLResponse[RuleDocumentQueryResponse](nil); err == nil {
		t.Fatal("expected error for nil response")
	}
}

func TestDocsFromResultsMissingCertainty(t *testing.T) {
	results := []RuleDocumentResult{{Title: "text hit"}}
	docs := docsFromResults(results)
	if docs[0].Certainty != 0 {
		t.Errorf("Certainty = %v for text result, want 0", docs[0].Certainty)
	}
}

func TestBuildScopeFilter(t *testing.T) {
	if f := buildScopeFilter("", ""); f != nil {
		t.Error("empty scope should produce no filter")
	}

	f := buildScopeFilter("network_health", "")
	if f == nil {
		t.Fatal("domain-only scope produced nil filter")
	}
	if s := f.String(); !strings.Contains(s, "domain") {
		t.Errorf("filter %q does not reference domain", s)
	}

	f = buildScopeFilter("network_health", "ftth_olt")
	if f == nil {
		t.Fatal("full scope produced nil filter")
	}
	s := f.String()
	if !strings.Contains(s, "domain") || !strings.Contains(s, "device_type") {
		t.Errorf("combined filter %q missing a path", s)
	}
}

func TestRuleDocumentPropertiesToMap(t *testing.T) {
	props := RuleDocumentProperties{
		Title:           "t",
		Content:         "c",
		Domain:          "network_health",
		DeviceType:      "ftth_olt",
		Keywords:        []string{"k"},
		ExecutableRules: "name: pack",
		Source:          "s.yaml",
		ParentSource:    "s.yaml",
		IngestedAt:      42,
	}
	m := props.ToMap()
	if m["domain"] != "network_health" || m["device_type"] != "ftth_olt" {
		t.Errorf("ToMap scope fields = %v/%v", m["domain"], m["device_type"])
	}
	if m["executable_rules"] != "name: pack" {
		t.Errorf("ToMap executable_rules = %v", m["executable_rules"])
	}
	if len(m) != 9 {
		t.Errorf("ToMap has %d keys, want 9", len(m))
	}
}
