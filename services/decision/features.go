// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package decision

import "strings"

// FieldAccessor is how the engine reads fields off an entity. Implementors
// resolve dotted paths ("config.vlan_count") into typed values. Returning
// (Absent, false) for unknown paths is expected and triggers defaulting,
// not an error.
type FieldAccessor interface {
	Get(path string) (Value, bool)
}

// MapAccessor adapts a decoded JSON or YAML document to FieldAccessor.
// Dotted paths descend through nested map[string]any levels.
type MapAccessor map[string]any

var _ FieldAccessor = MapAccessor(nil)

func (m MapAccessor) Get(path string) (Value, bool) {
	if m == nil || path == "" {
		return Absent, false
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(m)
	for _, part := range parts {
		level, ok := cur.(map[string]any)
		if !ok {
			return Absent, false
		}
		cur, ok = level[part]
		if !ok {
			return Absent, false
		}
	}
	v := FromAny(cur)
	if v.IsAbsent() {
		return Absent, false
	}
	return v, true
}

// boolFieldPrefixes and numberFieldSuffixes are the name conventions the
// extractor uses to pick a typed default for absent fields. A rule set can
// override any field through its field_types block; the conventions cover
// the common operational vocabulary so most rule sets never need to.
var boolFieldPrefixes = []string{"is_", "has_", "managed_", "complete_", "enabled_", "active_"}

var boolFieldSuffixes = []string{"_enabled", "_active", "_config", "_configured", "_ok", "_reachable"}

var numberFieldSuffixes = []string{
	"_count", "_total", "_gbps", "_mbps", "_percent", "_utilization",
	"_score", "_ports", "_errors", "_seconds", "_ms",
}

// conventionalFieldType classifies a field name into number, bool or
// string using the suffix and prefix tables above.
func conventionalFieldType(name string) FieldType {
	short := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		short = name[i+1:]
	}
	for _, suffix := range numberFieldSuffixes {
		if strings.HasSuffix(short, suffix) {
			return FieldNumber
		}
	}
	for _, prefix := range boolFieldPrefixes {
		if strings.HasPrefix(short, prefix) {
			return FieldBool
		}
	}
	for _, suffix := range boolFieldSuffixes {
		if strings.HasSuffix(short, suffix) {
			return FieldBool
		}
	}
	return FieldString
}

// defaultValueFor returns the typed placeholder for an absent field:
// numbers to 0, booleans to false, strings to "Unknown".
func defaultValueFor(ft FieldType) Value {
	switch ft {
	case FieldNumber:
		return Number(0)
	case FieldBool:
		return Bool(false)
	default:
		return String("Unknown")
	}
}

// extractFeatures projects an entity onto the rule set's summary fields.
// Every summary field is present in the result: fields the entity cannot
// resolve are filled with their typed default so downstream evaluation
// never branches on missingness. Field order follows the declaration order
// in the rule set.
func extractFeatures(entity FieldAccessor, rs *RuleSet) *FeatureSet {
	fs := NewFeatureSet()
	if rs == nil {
		return fs
	}
	for _, field := range rs.SummaryFields {
		if entity != nil {
			if v, ok := entity.Get(field); ok && !v.IsAbsent() {
				fs.Set(field, v)
				continue
			}
		}
		fs.Set(field, defaultValueFor(rs.fieldType(field)))
	}
	return fs
}
