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
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const validPackYAML = `
name: test_olt_rules
domain: network_health
entity_type: ftth_olt
summary_fields:
  - service_count
classification:
  CRITICAL:
    - field: service_count
      operator: "=="
      value: 0
scoring:
  - name: no_services
    when:
      field: service_count
      operator: "=="
      value: 0
    impact: -50
`

const badExprPackYAML = `
name: broken_rules
domain: network_health
entity_type: ftth_olt
summary_fields:
  - service_count
classification:
  CRITICAL:
    - expr: "service_count ==)"
`

func writePack(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return path
}

func TestParseRulePack(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"valid pack", validPackYAML, false},
		{"broken expression", badExprPackYAML, true},
		{"not yaml", "{{nope", true},
		{"missing name", "domain: d\nentity_type: e\nsummary_fields: [a]", true},
		{"missing domain", "name: n\nentity_type: e\nsummary_fields: [a]", true},
		{"missing entity type", "name: n\ndomain: d\nsummary_fields: [a]", true},
		{"no summary fields", "name: n\ndomain: d\nentity_type: e", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rs, err := ParseRulePack([]byte(tc.yaml))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRulePack: %v", err)
			}
			if rs.Name != "test_olt_rules" || rs.Domain != "network_health" {
				t.Errorf("parsed pack = %s/%s", rs.Name, rs.Domain)
			}
		})
	}
}

func TestLoadAllSkipsMalformedPacks(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "good.yaml", validPackYAML)
	writePack(t, dir, "broken.yaml", badExprPackYAML)
	writePack(t, dir, "notes.txt", "not a pack")

	store := NewMemoryRuleStore()
	loader := NewPackLoader(dir, store, nil, nil, nil)

	loaded, err := loader.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if loaded != 1 {
		t.Errorf("loaded = %d, want 1", loaded)
	}
	if _, skipped := loader.Stats(); skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d docs, want 1", store.Len())
	}

	docs, err := store.TextSearch(context.Background(), "network_health rules", "network_health", "ftth_olt", 5)
	if err != nil {
		t.Fatalf("TextSearch: %v", err)
	}
	if len(docs) != 1 || docs[0].ExecutableRules == "" {
		t.Fatalf("loaded pack not retrievable with payload: %+v", docs)
	}
}

func TestLoadAllReplacesOnReload(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "pack.yaml", validPackYAML)

	store := NewMemoryRuleStore()
	loader := NewPackLoader(dir, store, nil, nil, nil)

	if _, err := loader.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, err := loader.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll again: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d docs after double load, want 1", store.Len())
	}
}

func TestLoadAllMissingDirectory(t *testing.T) {
	store := NewMemoryRuleStore()
	loader := NewPackLoader(filepath.Join(t.TempDir(), "absent"), store, nil, nil, nil)
	if _, err := loader.LoadAll(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatchReloadsAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryRuleStore()

	var reloads atomic.Int64
	opts := &LoaderOptions{DebounceWindow: 50 * time.Millisecond}
	loader := NewPackLoader(dir, store, nil, func() { reloads.Add(1) }, opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loader.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer loader.Stop()

	writePack(t, dir, "pack.yaml", validPackYAML)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if store.Len() == 1 && reloads.Load() > 0 {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("watch did not reload: store=%d reloads=%d", store.Len(), reloads.Load())
}
