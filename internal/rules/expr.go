package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"trialqc/internal/records"
)

// Expr is a parsed logic_check expression. The grammar is deliberately small:
//
//	or     := and ("or" and)*
//	and    := cmp ("and" cmp)*
//	cmp    := operand ("==" | "!=") operand | "true" | "false" | "(" or ")"
//	operand := "{" field "}" | string | number | "true" | "false"
//
// Field references resolve against the record at evaluation time. Comparisons
// are numeric when both sides parse as numbers, string equality otherwise.
type Expr struct {
	root node
}

func (e Expr) Eval(rec records.Record) bool {
	return e.root.eval(rec)
}

type node interface {
	eval(rec records.Record) bool
}

type orNode struct{ left, right node }

func (n orNode) eval(rec records.Record) bool {
	return n.left.eval(rec) || n.right.eval(rec)
}

type andNode struct{ left, right node }

func (n andNode) eval(rec records.Record) bool {
	return n.left.eval(rec) && n.right.eval(rec)
}

type boolNode struct{ value bool }

func (n boolNode) eval(records.Record) bool { return n.value }

type cmpNode struct {
	left, right operand
	equal       bool
}

func (n cmpNode) eval(rec records.Record) bool {
	lv := n.left.value(rec)
	rv := n.right.value(rec)
	eq := valuesEqual(lv, rv)
	if n.equal {
		return eq
	}
	return !eq
}

func valuesEqual(a, b string) bool {
	if fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64); errA == nil {
		if fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64); errB == nil {
			return fa == fb
		}
	}
	return a == b
}

type operand struct {
	field   string
	literal string
}

func (o operand) value(rec records.Record) string {
	if o.field != "" {
		return rec.Get(o.field)
	}
	return o.literal
}

// ParseExpr compiles an expression once so it can be evaluated per record.
func ParseExpr(src string) (Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return Expr{}, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return Expr{}, err
	}
	if !p.done() {
		return Expr{}, fmt.Errorf("unexpected token %q", p.peek().text)
	}
	return Expr{root: root}, nil
}

type tokenKind int

const (
	tokField tokenKind = iota
	tokString
	tokNumber
	tokIdent
	tokEq
	tokNeq
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case c == '{':
			end := strings.IndexByte(src[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated field reference")
			}
			name := strings.TrimSpace(src[i+1 : i+end])
			if name == "" {
				return nil, fmt.Errorf("empty field reference")
			}
			tokens = append(tokens, token{tokField, name})
			i += end + 1
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(src) && src[j] != quote {
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{tokString, src[i+1 : j]})
			i = j + 1
		case c == '=':
			if i+1 < len(src) && src[i+1] == '=' {
				tokens = append(tokens, token{tokEq, "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("single '=' is not an operator")
			}
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				tokens = append(tokens, token{tokNeq, "!="})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected character '!'")
			}
		case c >= '0' && c <= '9' || c == '-' || c == '.':
			j := i
			if src[j] == '-' {
				j++
			}
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			text := src[i:j]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("invalid number %q", text)
			}
			tokens = append(tokens, token{tokNumber, text})
			i = j
		case isIdentStart(rune(c)):
			j := i
			for j < len(src) && isIdentPart(rune(src[j])) {
				j++
			}
			tokens = append(tokens, token{tokIdent, strings.ToLower(src[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return tokens, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) done() bool {
	return p.pos >= len(p.tokens)
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().kind == tokIdent && p.peek().text == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for !p.done() && p.peek().kind == tokIdent && p.peek().text == "and" {
		p.next()
		right, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseCmp() (node, error) {
	if p.done() {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.done() || p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil
	}
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.done() || (p.peek().kind != tokEq && p.peek().kind != tokNeq) {
		// A bare true/false literal is allowed; anything else needs an operator.
		if left.field == "" && (left.literal == "true" || left.literal == "false") {
			return boolNode{value: left.literal == "true"}, nil
		}
		return nil, fmt.Errorf("expected comparison operator")
	}
	op := p.next()
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return cmpNode{left: left, right: right, equal: op.kind == tokEq}, nil
}

func (p *parser) parseOperand() (operand, error) {
	if p.done() {
		return operand{}, fmt.Errorf("unexpected end of expression")
	}
	t := p.next()
	switch t.kind {
	case tokField:
		return operand{field: t.text}, nil
	case tokString, tokNumber:
		return operand{literal: t.text}, nil
	case tokIdent:
		if t.text == "true" || t.text == "false" {
			return operand{literal: t.text}, nil
		}
		return operand{}, fmt.Errorf("bare identifier %q; field references use {%s}", t.text, t.text)
	default:
		return operand{}, fmt.Errorf("unexpected token %q", t.text)
	}
}
