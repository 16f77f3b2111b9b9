// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrInvalidExpression is returned for any expression the evaluator rejects.
var ErrInvalidExpression = errors.New("invalid mathematical expression")

// maxExpressionLen bounds parser work on hostile input.
const maxExpressionLen = 1024

// Evaluate parses and computes an arithmetic expression.
//
// Grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/") unary }
//	unary  = { "+" | "-" } factor
//	factor = number | "(" expr ")" | "sqrt" "(" expr ")"
func Evaluate(expr string) (float64, error) {
	if len(expr) > maxExpressionLen {
		return 0, fmt.Errorf("%w: too long", ErrInvalidExpression)
	}
	p := &parser{src: expr}
	p.next()

	v, err := p.expr(0)
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokEOF {
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidExpression, p.tok.text, p.tok.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: result is not finite", ErrInvalidExpression)
	}
	return v, nil
}

// =============================================================================
// LEXER
// =============================================================================

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokOp
	tokLParen
	tokRParen
	tokIdent
	tokBad
)

type token struct {
	kind tokKind
	text string
	num  float64
	pos  int
}

type parser struct {
	src string
	pos int
	tok token
}

func (p *parser) next() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\r\n", p.src[p.pos]) >= 0 {
		p.pos++
	}
	if p.pos >= len(p.src) {
		p.tok = token{kind: tokEOF, pos: p.pos}
		return
	}

	start := p.pos
	c := p.src[p.pos]
	switch {
	case c >= '0' && c <= '9' || c == '.':
		for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
			p.pos++
		}
		text := p.src[start:p.pos]
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			p.tok = token{kind: tokBad, text: text, pos: start}
			return
		}
		p.tok = token{kind: tokNum, text: text, num: n, pos: start}
	case strings.IndexByte("+-*/", c) >= 0:
		p.pos++
		p.tok = token{kind: tokOp, text: string(c), pos: start}
	case c == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case unicode.IsLetter(rune(c)):
		for p.pos < len(p.src) && unicode.IsLetter(rune(p.src[p.pos])) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: strings.ToLower(p.src[start:p.pos]), pos: start}
	default:
		p.pos++
		p.tok = token{kind: tokBad, text: string(c), pos: start}
	}
}

// =============================================================================
// PARSER
// =============================================================================

// maxDepth bounds recursion for deeply nested parentheses.
const maxDepth = 64

func (p *parser) expr(depth int) (float64, error) {
	if depth > maxDepth {
		return 0, fmt.Errorf("%w: nesting too deep", ErrInvalidExpression)
	}
	left, err := p.term(depth)
	if err != nil {
		return 0, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		op := p.tok.text
		p.next()
		right, err := p.term(depth)
		if err != nil {
			return 0, err
		}
		if op == "+" {
			left += right
		} else {
			left -= right
		}
	}
	return left, nil
}

func (p *parser) term(depth int) (float64, error) {
	left, err := p.unary(depth)
	if err != nil {
		return 0, err
	}
	for p.tok.kind == tokOp && (p.tok.text == "*" || p.tok.text == "/") {
		op := p.tok.text
		p.next()
		right, err := p.unary(depth)
		if err != nil {
			return 0, err
		}
		if op == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, fmt.Errorf("%w: division by zero", ErrInvalidExpression)
			}
			left /= right
		}
	}
	return left, nil
}

func (p *parser) unary(depth int) (float64, error) {
	sign := 1.0
	for p.tok.kind == tokOp && (p.tok.text == "+" || p.tok.text == "-") {
		if p.tok.text == "-" {
			sign = -sign
		}
		p.next()
	}
	v, err := p.factor(depth)
	return sign * v, err
}

func (p *parser) factor(depth int) (float64, error) {
	switch p.tok.kind {
	case tokNum:
		v := p.tok.num
		p.next()
		return v, nil
	case tokLParen:
		return p.group(depth)
	case tokIdent:
		if p.tok.text != "sqrt" {
			return 0, fmt.Errorf("%w: unknown function %q", ErrInvalidExpression, p.tok.text)
		}
		p.next()
		if p.tok.kind != tokLParen {
			return 0, fmt.Errorf("%w: sqrt needs parentheses", ErrInvalidExpression)
		}
		v, err := p.group(depth)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("%w: sqrt of negative number", ErrInvalidExpression)
		}
		return math.Sqrt(v), nil
	case tokEOF:
		return 0, fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)
	default:
		return 0, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidExpression, p.tok.text, p.tok.pos)
	}
}

// group parses "(" expr ")" with the current token on "(".
func (p *parser) group(depth int) (float64, error) {
	p.next()
	v, err := p.expr(depth + 1)
	if err != nil {
		return 0, err
	}
	if p.tok.kind != tokRParen {
		return 0, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
	}
	p.next()
	return v, nil
}
