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
	"errors"
	"fmt"
)

// Evaluation errors are diagnostic only. Callers inside the engine convert
// every evaluation error into a false outcome and a debug log line; rule
// evaluation must never take down a health analysis.
var (
	errEmptyCondition = errors.New("condition has neither field nor expression")
	errTypeMismatch   = errors.New("operand type mismatch")
	errNotComparable  = errors.New("operands are not orderable")
)

// evalCondition resolves a condition of either form against a feature set.
// It consults nothing but its two arguments, so identical inputs always
// produce identical outcomes.
func evalCondition(c *Condition, fs *FeatureSet) (bool, error) {
	if c == nil {
		return false, errEmptyCondition
	}
	if c.Expr != "" {
		node := c.compiled
		if node == nil {
			// Hand-built conditions may skip RuleSet.Compile. Parse
			// transiently without caching to stay race-free.
			parsed, err := parseExpression(c.Expr)
			if err != nil {
				return false, err
			}
			node = parsed
		}
		v, err := node.eval(fs)
		if err != nil {
			return false, err
		}
		return v.Truthy(), nil
	}
	if c.Field != "" {
		return evalTriple(c, fs)
	}
	return false, errEmptyCondition
}

// describe renders a condition for log lines.
func (c *Condition) describe() string {
	if c == nil {
		return "<nil>"
	}
	if c.Expr != "" {
		return c.Expr
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// eval walks the expression tree. Logical nodes short-circuit; comparison
// nodes delegate to the typed comparators below.
func (n *exprNode) eval(fs *FeatureSet) (Value, error) {
	switch n.kind {
	case nodeLiteral:
		return n.lit, nil

	case nodeIdent:
		v, ok := fs.Get(n.ident)
		if !ok {
			return Absent, nil
		}
		return v, nil

	case nodeNot:
		v, err := n.left.eval(fs)
		if err != nil {
			return Absent, err
		}
		return Bool(!v.Truthy()), nil

	case nodeAnd:
		left, err := n.left.eval(fs)
		if err != nil {
			return Absent, err
		}
		if !left.Truthy() {
			return Bool(false), nil
		}
		right, err := n.right.eval(fs)
		if err != nil {
			return Absent, err
		}
		return Bool(right.Truthy()), nil

	case nodeOr:
		left, err := n.left.eval(fs)
		if err != nil {
			return Absent, err
		}
		if left.Truthy() {
			return Bool(true), nil
		}
		right, err := n.right.eval(fs)
		if err != nil {
			return Absent, err
		}
		return Bool(right.Truthy()), nil

	case nodeCompare:
		return n.evalCompare(fs)

	default:
		return Absent, fmt.Errorf("unknown expression node %d", n.kind)
	}
}

func (n *exprNode) evalCompare(fs *FeatureSet) (Value, error) {
	if n.op == OpIn || n.op == OpNotIn {
		if n.right.kind != nodeList {
			return Absent, fmt.Errorf("%s requires a list operand", n.op)
		}
		left, err := n.left.eval(fs)
		if err != nil {
			return Absent, err
		}
		member := false
		for _, elem := range n.right.elems {
			if left.Equal(elem.lit) {
				member = true
				break
			}
		}
		if n.op == OpNotIn {
			member = !member
		}
		return Bool(member), nil
	}

	left, err := n.left.eval(fs)
	if err != nil {
		return Absent, err
	}
	right, err := n.right.eval(fs)
	if err != nil {
		return Absent, err
	}
	ok, err := compareValues(n.op, left, right)
	if err != nil {
		return Absent, err
	}
	return Bool(ok), nil
}

// evalTriple evaluates the {field, operator, value} condition form. An
// absent feature falls back to a typed zero so that rules written against
// optional fields behave like the extractor had defaulted them.
func evalTriple(c *Condition, fs *FeatureSet) (bool, error) {
	if c.Operator == OpIn || c.Operator == OpNotIn {
		rawList, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("%s condition on %q requires a list value", c.Operator, c.Field)
		}
		left, present := fs.Get(c.Field)
		if !present || left.IsAbsent() {
			left = absentDefaultForList(rawList)
		}
		member := false
		for _, el := range rawList {
			if left.Equal(FromAny(el)) {
				member = true
				break
			}
		}
		if c.Operator == OpNotIn {
			member = !member
		}
		return member, nil
	}

	want := FromAny(c.Value)
	got, present := fs.Get(c.Field)
	if !present || got.IsAbsent() {
		got = absentDefault(c.Operator, want)
	}
	return compareValues(c.Operator, got, want)
}

// absentDefault picks the typed zero an absent feature evaluates as:
// ordering operators read it as 0, equality reads it as the zero of the
// rule value's own type.
func absentDefault(op string, want Value) Value {
	switch op {
	case OpLt, OpLe, OpGt, OpGe:
		return Number(0)
	}
	switch want.Kind() {
	case KindNumber:
		return Number(0)
	case KindBool:
		return Bool(false)
	default:
		return String("")
	}
}

func absentDefaultForList(list []any) Value {
	if len(list) == 0 {
		return String("")
	}
	switch FromAny(list[0]).Kind() {
	case KindNumber:
		return Number(0)
	case KindBool:
		return Bool(false)
	default:
		return String("")
	}
}

// compareValues applies a comparison operator with numeric coercion.
// Equality across different kinds is a mismatch, not a false, so the engine
// can log it; ordering is defined for numbers only.
func compareValues(op string, left, right Value) (bool, error) {
	switch op {
	case OpEq, OpNe:
		if left.Kind() != right.Kind() {
			return false, fmt.Errorf("%w: %s %s %s", errTypeMismatch, left, op, right)
		}
		eq := left.Equal(right)
		if op == OpNe {
			return !eq, nil
		}
		return eq, nil

	case OpLt, OpLe, OpGt, OpGe:
		l, lok := left.AsNumber()
		r, rok := right.AsNumber()
		if !lok || !rok {
			return false, fmt.Errorf("%w: %s %s %s", errNotComparable, left, op, right)
		}
		switch op {
		case OpLt:
			return l < r, nil
		case OpLe:
			return l <= r, nil
		case OpGt:
			return l > r, nil
		case OpGe:
			return l >= r, nil
		}
	}
	return false, fmt.Errorf("unknown operator %q", op)
}
