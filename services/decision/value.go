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

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the variants of a Value.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBool
)

// Value is the tagged variant flowing through feature extraction and
// condition evaluation. Using an explicit variant instead of interface{}
// keeps comparison semantics in one place and makes absent a first-class
// state rather than a nil to trip over.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// Absent is the zero Value.
var Absent = Value{}

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }

// FromAny converts a dynamically typed value, as produced by JSON or YAML
// decoding, into a Value. Integer and float widths all collapse to float64.
// Unsupported types come back absent.
func FromAny(v any) Value {
	switch t := v.(type) {
	case nil:
		return Absent
	case Value:
		return t
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Absent
		}
		return Number(f)
	default:
		return Absent
	}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

func (v Value) AsNumber() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Interface unwraps the value for JSON serialization. Absent becomes nil.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// Equal reports strict same-kind equality. Cross-kind comparisons are
// always false; the evaluator handles numeric coercion before calling this.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// Truthy reports the boolean reading of a value: bools read as themselves,
// numbers as non-zero, strings as non-empty, absent as false. Bare
// identifiers in expressions rely on this.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<absent>"
	}
}

// FeatureSet is an insertion-ordered collection of named values. Order
// follows the rule set's summary field declaration so that result output
// and reasoning strings are deterministic run to run.
type FeatureSet struct {
	names  []string
	values map[string]Value
}

func NewFeatureSet() *FeatureSet {
	return &FeatureSet{values: make(map[string]Value)}
}

// Set inserts or replaces a feature. The first insertion fixes the
// feature's position.
func (fs *FeatureSet) Set(name string, v Value) {
	if _, ok := fs.values[name]; !ok {
		fs.names = append(fs.names, name)
	}
	fs.values[name] = v
}

func (fs *FeatureSet) Get(name string) (Value, bool) {
	v, ok := fs.values[name]
	return v, ok
}

func (fs *FeatureSet) Len() int { return len(fs.names) }

// Names returns the feature names in insertion order.
func (fs *FeatureSet) Names() []string {
	out := make([]string, len(fs.names))
	copy(out, fs.names)
	return out
}

// ToMap flattens the set for JSON output. Map order is not meaningful;
// callers that need ordering use Names.
func (fs *FeatureSet) ToMap() map[string]any {
	out := make(map[string]any, len(fs.names))
	for name, v := range fs.values {
		out[name] = v.Interface()
	}
	return out
}

func (fs *FeatureSet) String() string {
	s := "{"
	for i, name := range fs.names {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%s", name, fs.values[name])
	}
	return s + "}"
}
