// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Expression parsing for rule conditions.
//
// The grammar is deliberately restricted: comparisons, boolean composition
// and list membership over feature identifiers and literals. There are no
// function calls, no arithmetic, no name resolution beyond the feature set.
// Rule documents were historically authored for a Python evaluator, so the
// keyword spellings "and", "or", "not", "True" and "False" are accepted
// alongside "&&", "||" and "!".
//
//	expr       := or
//	or         := and (("||" | "or") and)*
//	and        := unary (("&&" | "and") unary)*
//	unary      := ("!" | "not") unary | comparison
//	comparison := primary (cmpop primary)?
//	cmpop      := "==" | "!=" | "<" | "<=" | ">" | ">=" | "in" | "not" "in"
//	primary    := "(" expr ")" | list | literal | identifier
//	list       := "[" (literal ("," literal)*)? "]"
package decision

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// tokenize splits an expression into tokens. Positions are byte offsets
// into the input, used only for error messages.
func tokenize(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		ch := input[i]

		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			i++
			continue
		}

		// Two-character operators take precedence over their prefixes.
		if i+1 < len(input) {
			two := input[i : i+2]
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				toks = append(toks, token{kind: tokOp, text: two, pos: i})
				i += 2
				continue
			}
		}

		switch ch {
		case '<', '>', '!':
			toks = append(toks, token{kind: tokOp, text: string(ch), pos: i})
			i++
			continue
		case '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
			continue
		case ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
			continue
		case '[':
			toks = append(toks, token{kind: tokLBracket, text: "[", pos: i})
			i++
			continue
		case ']':
			toks = append(toks, token{kind: tokRBracket, text: "]", pos: i})
			i++
			continue
		case ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
			continue
		case '\'', '"':
			quote := ch
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(input) {
				c := input[i]
				if c == '\\' && i+1 < len(input) {
					sb.WriteByte(input[i+1])
					i += 2
					continue
				}
				if c == quote {
					closed = true
					i++
					break
				}
				sb.WriteByte(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string starting at %d", start)
			}
			toks = append(toks, token{kind: tokString, text: sb.String(), pos: start})
			continue
		}

		// Numbers, including a leading minus. The grammar has no
		// arithmetic, so a minus before a digit is always a sign.
		if isDigit(ch) || (ch == '-' && i+1 < len(input) && isDigit(input[i+1])) {
			start := i
			i++
			sawDot := false
			for i < len(input) {
				c := input[i]
				if c == '.' && !sawDot {
					sawDot = true
					i++
					continue
				}
				if !isDigit(c) {
					break
				}
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: input[start:i], pos: start})
			continue
		}

		if isIdentStart(rune(ch)) {
			start := i
			i++
			for i < len(input) && isIdentPart(rune(input[i])) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: input[start:i], pos: start})
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at %d", ch, i)
	}
	toks = append(toks, token{kind: tokEOF, pos: len(input)})
	return toks, nil
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

// Identifiers allow dots for nested field paths, e.g. "config.vlan_count".
func isIdentPart(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

type nodeKind int

const (
	nodeAnd nodeKind = iota
	nodeOr
	nodeNot
	nodeCompare
	nodeIdent
	nodeLiteral
	nodeList
)

// exprNode is one node of a parsed condition expression. Trees are built
// once at rule compile time and are immutable afterwards, so concurrent
// evaluation needs no locking.
type exprNode struct {
	kind  nodeKind
	op    string // comparison operator, nodeCompare only
	left  *exprNode
	right *exprNode
	elems []*exprNode // nodeList members
	ident string      // nodeIdent field path
	lit   Value       // nodeLiteral constant
}

type exprParser struct {
	toks []token
	pos  int
}

// parseExpression parses the restricted condition grammar into an
// evaluation tree. It rejects trailing input so "a == 1 b" fails instead
// of silently dropping tokens.
func parseExpression(input string) (*exprNode, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tk := p.peek(); tk.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at %d", tk.text, tk.pos)
	}
	return node, nil
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	tk := p.toks[p.pos]
	if tk.kind != tokEOF {
		p.pos++
	}
	return tk
}

func (p *exprParser) parseOr() (*exprNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchOp("||") || p.matchKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &exprNode{kind: nodeOr, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (*exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.matchOp("&&") || p.matchKeyword("and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &exprNode{kind: nodeAnd, left: left, right: right}
	}
	return left, nil
}

// parseUnary handles negation. A "not" here is always unary: the "not in"
// operator can only appear after a completed operand, which parseComparison
// consumes before looking for it.
func (p *exprParser) parseUnary() (*exprNode, error) {
	if p.matchOp("!") || p.matchKeyword("not") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &exprNode{kind: nodeNot, left: operand}, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (*exprNode, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	op := ""
	switch tk := p.peek(); {
	case tk.kind == tokOp && isComparisonOp(tk.text):
		op = tk.text
		p.next()
	case tk.kind == tokIdent && tk.text == "in":
		op = OpIn
		p.next()
	case tk.kind == tokIdent && tk.text == "not" && p.peekAheadIs("in"):
		p.next() // not
		p.next() // in
		op = OpNotIn
	default:
		return left, nil
	}

	right, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return &exprNode{kind: nodeCompare, op: op, left: left, right: right}, nil
}

func (p *exprParser) parsePrimary() (*exprNode, error) {
	tk := p.peek()
	switch tk.kind {
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("expected ) at %d", closing.pos)
		}
		return inner, nil

	case tokLBracket:
		return p.parseList()

	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(tk.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at %d", tk.text, tk.pos)
		}
		return &exprNode{kind: nodeLiteral, lit: Number(f)}, nil

	case tokString:
		p.next()
		return &exprNode{kind: nodeLiteral, lit: String(tk.text)}, nil

	case tokIdent:
		p.next()
		switch tk.text {
		case "true", "True":
			return &exprNode{kind: nodeLiteral, lit: Bool(true)}, nil
		case "false", "False":
			return &exprNode{kind: nodeLiteral, lit: Bool(false)}, nil
		case "and", "or", "not", "in":
			return nil, fmt.Errorf("unexpected keyword %q at %d", tk.text, tk.pos)
		}
		return &exprNode{kind: nodeIdent, ident: tk.text}, nil

	default:
		return nil, fmt.Errorf("unexpected %q at %d", tk.text, tk.pos)
	}
}

func (p *exprParser) parseList() (*exprNode, error) {
	open := p.next() // [
	list := &exprNode{kind: nodeList}
	if p.peek().kind == tokRBracket {
		p.next()
		return list, nil
	}
	for {
		elem, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if elem.kind != nodeLiteral {
			return nil, fmt.Errorf("list starting at %d may only contain literals", open.pos)
		}
		list.elems = append(list.elems, elem)
		switch tk := p.next(); tk.kind {
		case tokComma:
			continue
		case tokRBracket:
			return list, nil
		default:
			return nil, fmt.Errorf("expected , or ] at %d", tk.pos)
		}
	}
}

func (p *exprParser) matchOp(text string) bool {
	if tk := p.peek(); tk.kind == tokOp && tk.text == text {
		p.next()
		return true
	}
	return false
}

func (p *exprParser) matchKeyword(word string) bool {
	if tk := p.peek(); tk.kind == tokIdent && tk.text == word {
		p.next()
		return true
	}
	return false
}

func (p *exprParser) peekAheadIs(word string) bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	tk := p.toks[p.pos+1]
	return tk.kind == tokIdent && tk.text == word
}

func isComparisonOp(s string) bool {
	switch s {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}
